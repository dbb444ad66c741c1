package reactor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
	"github.com/genesis-deploy/genesis/internal/compose"
	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/internal/exodus"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"github.com/genesis-deploy/genesis/internal/kit"
	"github.com/genesis-deploy/genesis/internal/planvalidate"
	"github.com/genesis-deploy/genesis/internal/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secretValue = "supersecretvalue123"

type response struct {
	stdout string
	stderr string
	err    error
}

// scriptedExecutor dispatches by the command's own name, the same
// convention driver_test.go uses for the BOSH CLI: every external
// program the pipeline can shell out to (spruce, bosh, a kit hook, a
// reaction script) gets one canned response.
type scriptedExecutor struct {
	byName map[string]response
	calls  [][]string
}

func (s *scriptedExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	r, ok := s.byName[name]
	if !ok {
		return nil, nil, errors.New("scriptedExecutor: no response registered for " + name)
	}
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func (s *scriptedExecutor) ran(name string) bool {
	for _, c := range s.calls {
		if len(c) > 0 && c[0] == name {
			return true
		}
	}
	return false
}

type fakeStore struct {
	export  map[string]map[string]string
	queries [][]string
}

func (f *fakeStore) Export(ctx context.Context, prefixes ...string) (map[string]map[string]string, error) {
	return f.export, nil
}

func (f *fakeStore) Query(ctx context.Context, args ...string) (string, string, error) {
	f.queries = append(f.queries, args)
	return "", "", nil
}

const manifestYAML = `
properties:
  admin_password: ` + secretValue + `
exodus:
  version: 1
  admin_password: ` + secretValue + `
`

func setup(t *testing.T, exec *scriptedExecutor, store *fakeStore) *reactor.Reactor {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "staging.yml"), []byte(`genesis:
  env: staging
  secrets_mount: secret/staging
kit:
  features: []
params: {}
`), 0o644))

	workDir := t.TempDir()
	genesisRoot := t.TempDir()

	composer := compose.NewComposer(root, compose.NewMerger(exec))

	deps := reactor.Deps{
		Composer:  composer,
		Hooks:     hookrunner.New(exec),
		Validator: planvalidate.New(nil),
		Bosh:      &boshdriver.Driver{Executor: exec, Binary: "bosh"},
		Exodus:    exodus.New(store, "secret/exodus"),
		Store:     store,

		GenesisRoot: genesisRoot,
		WorkDir:     workDir,
	}
	return reactor.New(deps)
}

func baseOptions() reactor.Options {
	return reactor.Options{
		Env: &compose.EnvironmentFile{
			Genesis: compose.GenesisBlock{
				Env:          "staging",
				BoshEnv:      "staging-director",
				SecretsMount: "secret/staging",
				Reactions: map[string][]compose.Reaction{
					"pre-deploy":  {{Script: "/bin/pre-react1"}},
					"post-deploy": {{Script: "/bin/post-react1"}},
				},
			},
		},
		Kit: &kit.Metadata{
			Name:    "myelb",
			Version: "1.0.0",
			Hooks: map[string]string{
				"pre-deploy":  "/bin/true-predeploy",
				"post-deploy": "/bin/true-postdeploy",
			},
		},
		Deployment:     "staging-myelb",
		NonInteractive: true,
	}
}

func TestDeploySucceeds(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byName: map[string]response{
		"spruce":               {stdout: manifestYAML},
		"bosh":                 {stdout: "Deployed successfully"},
		"/bin/true-predeploy":  {stdout: "predeploy-data"},
		"/bin/pre-react1":      {},
		"/bin/true-postdeploy": {},
		"/bin/post-react1":     {},
	}}
	store := &fakeStore{export: map[string]map[string]string{
		"secret/staging": {"password": secretValue},
	}}

	r := setup(t, exec, store)
	res, err := r.Deploy(context.Background(), baseOptions())
	require.NoError(t, err)

	assert.True(t, res.Deployed)
	assert.True(t, res.ExodusPublished)
	require.NotEmpty(t, res.RedactedManifestPath)
	require.NotEmpty(t, res.UnredactedManifestPath)

	redacted, err := os.ReadFile(res.RedactedManifestPath)
	require.NoError(t, err)
	assert.NotContains(t, string(redacted), secretValue, "secret value must not appear in the redacted manifest")
	assert.Contains(t, string(redacted), "((", "redacted manifest should carry a BOSH-style placeholder")

	unredacted, err := os.ReadFile(res.UnredactedManifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(unredacted), secretValue, "unredacted manifest feeds the BOSH deploy and must carry the real value")

	vars, err := os.ReadFile(res.VarsPath)
	require.NoError(t, err)
	assert.Contains(t, string(vars), secretValue)

	cached := filepath.Join(r.Deps.GenesisRoot, ".genesis", "manifests", "staging.yml")
	_, err = os.Stat(cached)
	assert.NoError(t, err, "a successful deploy promotes the manifest into the cache")

	require.Len(t, store.queries, 2, "exodus publish clears then sets the record")
	assert.Equal(t, "rm", store.queries[0][0])
	assert.Equal(t, "set", store.queries[1][0])

	assert.True(t, exec.ran("/bin/true-predeploy"))
	assert.True(t, exec.ran("/bin/pre-react1"))
	assert.True(t, exec.ran("/bin/true-postdeploy"))
	assert.True(t, exec.ran("/bin/post-react1"))
}

func TestDeployFailureStillRunsPostDeploy(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byName: map[string]response{
		"spruce":               {stdout: manifestYAML},
		"bosh":                 {stderr: "director unreachable", err: errors.New("exit status 1")},
		"/bin/true-predeploy":  {stdout: "predeploy-data"},
		"/bin/pre-react1":      {},
		"/bin/true-postdeploy": {},
		"/bin/post-react1":     {},
	}}
	store := &fakeStore{export: map[string]map[string]string{
		"secret/staging": {"password": secretValue},
	}}

	r := setup(t, exec, store)
	res, err := r.Deploy(context.Background(), baseOptions())
	require.Error(t, err)

	assert.False(t, res.Deployed)
	assert.False(t, res.ExodusPublished, "a failed deploy must not publish an Exodus record")
	assert.Empty(t, store.queries, "a failed deploy must not touch the credentials store")

	cached := filepath.Join(r.Deps.GenesisRoot, ".genesis", "manifests", "staging.yml")
	_, statErr := os.Stat(cached)
	assert.True(t, os.IsNotExist(statErr), "a failed deploy must not refresh the cached manifest")

	assert.True(t, exec.ran("/bin/true-postdeploy"), "post-deploy hook still runs after a deploy failure")
	assert.True(t, exec.ran("/bin/post-react1"), "post-deploy reactions still run after a deploy failure")

	var deployErr genesiserrors.DeployError
	require.ErrorAs(t, err, &deployErr)
	assert.True(t, deployErr.PostDeployRan)
	assert.NotEqual(t, 0, deployErr.ExitCode)
}

func TestDryRunSkipsExodusAndPostDeploy(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byName: map[string]response{
		"spruce":              {stdout: manifestYAML},
		"bosh":                {stdout: "Deployed successfully"},
		"/bin/true-predeploy": {stdout: "predeploy-data"},
		"/bin/pre-react1":     {},
	}}
	store := &fakeStore{export: map[string]map[string]string{
		"secret/staging": {"password": secretValue},
	}}

	r := setup(t, exec, store)
	opts := baseOptions()
	opts.DryRun = true

	res, err := r.Deploy(context.Background(), opts)
	require.NoError(t, err)

	assert.True(t, res.Deployed)
	assert.False(t, res.ExodusPublished)
	assert.Empty(t, store.queries)
	assert.False(t, exec.ran("/bin/true-postdeploy"))
	assert.False(t, exec.ran("/bin/post-react1"))

	cached := filepath.Join(r.Deps.GenesisRoot, ".genesis", "manifests", "staging.yml")
	_, statErr := os.Stat(cached)
	assert.True(t, os.IsNotExist(statErr))
}
