package compose_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/genesis-deploy/genesis/internal/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	stdout string
	stderr string
	err    error
}

type scriptedExecutor struct {
	calls     [][]string
	responses []response
}

func (s *scriptedExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if len(s.responses) == 0 {
		return nil, nil, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return []byte(r.stdout), []byte(r.stderr), r.err
}

type exitError struct{}

func (exitError) Error() string { return "exit status 1" }

func writeEnvFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yml"), []byte(body), 0o600))
}

func TestDecomposeBuildsAncestorPrefixSequence(t *testing.T) {
	t.Parallel()

	got := compose.Decompose("a-b-c-d")
	assert.Equal(t, []string{"a", "a-b", "a-b-c", "a-b-c-d"}, got)
}

func TestValidateNameRejectsConsecutiveHyphens(t *testing.T) {
	t.Parallel()

	assert.Error(t, compose.ValidateName("a--b"))
	assert.NoError(t, compose.ValidateName("a-b-c"))
}

func TestValidateNameRejectsUppercase(t *testing.T) {
	t.Parallel()

	assert.Error(t, compose.ValidateName("Staging"))
}

func TestLoadEnvironmentFileRequiresMatchingName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "a", "genesis:\n  env: wrong-name\n")

	_, err := compose.LoadEnvironmentFile(filepath.Join(dir, "a.yml"))
	assert.Error(t, err)
}

func TestLoadEnvironmentFileRequiresDeclaredName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "a", "params:\n  x: 1\n")

	_, err := compose.LoadEnvironmentFile(filepath.Join(dir, "a.yml"))
	assert.Error(t, err)
}

func TestBuildFileListHierarchyLengthMatchesNamePlusInherits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "a", "genesis:\n  env: a\nparams:\n  x: 1\n")
	writeEnvFile(t, dir, "a-b", "genesis:\n  env: a-b\n")
	writeEnvFile(t, dir, "a-b-c", "genesis:\n  env: a-b-c\n")

	composer := compose.NewComposer(dir, compose.NewMerger(&scriptedExecutor{}))
	list, err := composer.BuildFileList("a-b-c", nil)
	require.NoError(t, err)
	defer list.Cleanup()

	assert.Len(t, list.Ancestors, 3)
}

func TestBuildFileListInsertsInheritsBeforeReferencingAncestor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "shared", "genesis:\n  env: shared\nparams:\n  x: 1\n")
	writeEnvFile(t, dir, "ab", "genesis:\n  env: ab\n  inherits: [shared]\n")

	composer := compose.NewComposer(dir, compose.NewMerger(&scriptedExecutor{}))
	list, err := composer.BuildFileList("ab", nil)
	require.NoError(t, err)
	defer list.Cleanup()

	require.Len(t, list.Ancestors, 2)
	assert.Equal(t, filepath.Join(dir, "shared.yml"), list.Ancestors[0])
	assert.Equal(t, filepath.Join(dir, "ab.yml"), list.Ancestors[1])
}

func TestBuildFileListSkipsMissingAncestors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// only a-b-c.yml exists; a.yml and a-b.yml are absent
	writeEnvFile(t, dir, "a-b-c", "genesis:\n  env: a-b-c\n")

	composer := compose.NewComposer(dir, compose.NewMerger(&scriptedExecutor{}))
	list, err := composer.BuildFileList("a-b-c", nil)
	require.NoError(t, err)
	defer list.Cleanup()

	assert.Len(t, list.Ancestors, 1)
}

func TestBuildFileListErrorsWhenNoAncestorExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	composer := compose.NewComposer(dir, compose.NewMerger(&scriptedExecutor{}))
	_, err := composer.BuildFileList("nowhere", nil)
	assert.Error(t, err)
}

func TestBuildFileListPrefersCacheDirOverRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cache := t.TempDir()
	writeEnvFile(t, root, "ab", "genesis:\n  env: ab\nparams:\n  x: 1\n")
	writeEnvFile(t, cache, "ab", "genesis:\n  env: ab\nparams:\n  x: 2\n")

	composer := compose.NewComposer(root, compose.NewMerger(&scriptedExecutor{}))
	composer.CacheDir = cache
	list, err := composer.BuildFileList("ab", nil)
	require.NoError(t, err)
	defer list.Cleanup()

	require.Len(t, list.Ancestors, 1)
	assert.Equal(t, filepath.Join(cache, "ab.yml"), list.Ancestors[0])
}

func TestParameterViewMergesWithSkipEval(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "ab", "genesis:\n  env: ab\nparams:\n  x: 1\n")

	exec := &scriptedExecutor{responses: []response{{stdout: "params:\n  x: 1\n"}}}
	composer := compose.NewComposer(dir, compose.NewMerger(exec))

	view, err := composer.ParameterView(context.Background(), "ab", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Lookup(nil, "params.x"))

	require.Len(t, exec.calls, 1)
	assert.Contains(t, exec.calls[0], "--skip-eval")
}

func TestParameterViewIsCachedAcrossCalls(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "ab", "genesis:\n  env: ab\n")

	exec := &scriptedExecutor{responses: []response{{stdout: "params: {}\n"}}}
	composer := compose.NewComposer(dir, compose.NewMerger(exec))

	_, err := composer.ParameterView(context.Background(), "ab", nil)
	require.NoError(t, err)
	_, err = composer.ParameterView(context.Background(), "ab", nil)
	require.NoError(t, err)

	assert.Len(t, exec.calls, 1, "second call should hit the cache, not re-invoke the merger")
}

func TestManifestViewFallsBackToAdaptiveMergeOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "ab", "genesis:\n  env: ab\nparams:\n  missing: (( vault \"secret/missing:key\" ))\n  present: ok\n")

	exec := &scriptedExecutor{responses: []response{
		{stderr: `error resolving (( vault "secret/missing:key" )): secret not found`, err: exitError{}},
		{stdout: "params:\n  present: ok\n"},
	}}
	composer := compose.NewComposer(dir, compose.NewMerger(exec))

	manifest, err := composer.ManifestView(context.Background(), "ab", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", manifest["params"].(map[string]interface{})["present"])
	assert.Len(t, exec.calls, 2)
}

func TestAdaptiveMergeGivesUpAfterFiveAttempts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "x.yml")
	require.NoError(t, os.WriteFile(file, []byte(`params:
  a: (( vault "secret/a:key" ))
`), 0o600))

	responses := make([]response, 0, 6)
	for i := 0; i < 6; i++ {
		responses = append(responses, response{stderr: `error resolving (( vault "secret/a:key" ))`, err: exitError{}})
	}
	exec := &scriptedExecutor{responses: responses}
	merger := compose.NewMerger(exec)

	_, err := merger.AdaptiveMerge(context.Background(), []string{file})
	assert.Error(t, err)
}

func TestLookupFallsBackAcrossAlternatePaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "ab", "genesis:\n  env: ab\n")

	exec := &scriptedExecutor{responses: []response{{stdout: "params:\n  new_name: here\n"}}}
	composer := compose.NewComposer(dir, compose.NewMerger(exec))

	view, err := composer.ParameterView(context.Background(), "ab", nil)
	require.NoError(t, err)

	got := view.Lookup("fallback", "params.old_name", "params.new_name")
	assert.Equal(t, "here", got)
}

func TestLookupThunkDefaultOnlyCalledWhenMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeEnvFile(t, dir, "ab", "genesis:\n  env: ab\n")

	exec := &scriptedExecutor{responses: []response{{stdout: "params:\n  present: 1\n"}}}
	composer := compose.NewComposer(dir, compose.NewMerger(exec))
	view, err := composer.ParameterView(context.Background(), "ab", nil)
	require.NoError(t, err)

	called := false
	thunk := compose.Thunk(func() interface{} {
		called = true
		return "computed"
	})

	got := view.Lookup(thunk, "params.present")
	assert.Equal(t, 1, got)
	assert.False(t, called)

	missing := view.Lookup(thunk, "params.absent")
	assert.Equal(t, "computed", missing)
	assert.True(t, called)
}
