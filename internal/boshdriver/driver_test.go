package boshdriver_test

import (
	"context"
	"testing"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExecutor struct {
	byBinary map[string]response
	calls    [][]string
}

type response struct {
	stdout string
	stderr string
	err    error
}

func (s *scriptedExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	r, ok := s.byBinary[name]
	if !ok {
		return nil, nil, assertErr{}
	}
	return []byte(r.stdout), []byte(r.stderr), r.err
}

type assertErr struct{}

func (assertErr) Error() string { return "command not found" }

func TestProbePicksHighestCompatibleBinary(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byBinary: map[string]response{
		"bosh":  {stdout: "version 7.4.1\n"},
		"bosh2": {stdout: "version 7.9.0\n"},
	}}

	d, err := boshdriver.Probe(context.Background(), exec, "7.0.0")
	require.NoError(t, err)
	assert.Equal(t, "bosh2", d.Binary)
}

func TestProbeRejectsBelowMinVersion(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byBinary: map[string]response{
		"bosh": {stdout: "version 6.0.0\n"},
	}}

	_, err := boshdriver.Probe(context.Background(), exec, "7.0.0")
	require.Error(t, err)
	var depErr genesiserrors.DependencyError
	assert.ErrorAs(t, err, &depErr)
}

func TestProbeFailsWhenNoBinaryFound(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byBinary: map[string]response{}}
	_, err := boshdriver.Probe(context.Background(), exec, "")
	require.Error(t, err)
}

func TestResolveStemcellVersionLatest(t *testing.T) {
	t.Parallel()

	stemcells := []boshdriver.Stemcell{
		{Name: "bosh-warden-boshlite-ubuntu-jammy-go_agent", OS: "ubuntu-jammy", Version: "1.1"},
		{Name: "bosh-warden-boshlite-ubuntu-jammy-go_agent", OS: "ubuntu-jammy", Version: "1.50"},
		{Name: "bosh-warden-boshlite-ubuntu-jammy-go_agent", OS: "ubuntu-jammy", Version: "1.25"},
	}

	v, err := boshdriver.ResolveStemcellVersion(stemcells, "bosh-warden-boshlite-ubuntu-jammy-go_agent", "ubuntu-jammy", "latest")
	require.NoError(t, err)
	assert.Equal(t, "1.50", v)
}

func TestResolveStemcellVersionMajorLatest(t *testing.T) {
	t.Parallel()

	stemcells := []boshdriver.Stemcell{
		{Name: "n", OS: "ubuntu-jammy", Version: "621.1"},
		{Name: "n", OS: "ubuntu-jammy", Version: "621.50"},
		{Name: "n", OS: "ubuntu-jammy", Version: "700.1"},
	}

	v, err := boshdriver.ResolveStemcellVersion(stemcells, "n", "ubuntu-jammy", "621.latest")
	require.NoError(t, err)
	assert.Equal(t, "621.50", v)
}

func TestResolveStemcellVersionExact(t *testing.T) {
	t.Parallel()

	stemcells := []boshdriver.Stemcell{{Name: "n", OS: "ubuntu-jammy", Version: "1.2"}}
	v, err := boshdriver.ResolveStemcellVersion(stemcells, "n", "ubuntu-jammy", "1.2")
	require.NoError(t, err)
	assert.Equal(t, "1.2", v)
}

func TestResolveStemcellVersionNotFound(t *testing.T) {
	t.Parallel()

	stemcells := []boshdriver.Stemcell{{Name: "n", OS: "ubuntu-jammy", Version: "1.2"}}
	_, err := boshdriver.ResolveStemcellVersion(stemcells, "n", "ubuntu-jammy", "9.9")
	require.Error(t, err)
}

func TestDeployBuildsExpectedArgs(t *testing.T) {
	t.Parallel()

	exec := &scriptedExecutor{byBinary: map[string]response{
		"bosh": {stdout: ""},
	}}
	d := &boshdriver.Driver{Executor: exec, Binary: "bosh"}

	_, err := d.Deploy(context.Background(), boshdriver.DeployOptions{
		BoshEnv:        "prod",
		Deployment:     "cf",
		ManifestFile:   "/tmp/manifest.yml",
		VarsFile:       "/tmp/vars.yml",
		NonInteractive: true,
	})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, []string{"bosh", "-e", "prod", "-d", "cf", "deploy", "/tmp/manifest.yml", "--vars-file", "/tmp/vars.yml", "-n"}, exec.calls[0])
}
