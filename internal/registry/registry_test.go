package registry_test

import (
	"context"
	"testing"

	"github.com/genesis-deploy/genesis/internal/registry"
	"github.com/genesis-deploy/genesis/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	stdout string
}

func (f fakeExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return []byte(f.stdout), nil, nil
}

func loadedRegistry(t *testing.T, jsonPayload string) *registry.Registry {
	t.Helper()
	reg := registry.New(fakeExecutor{stdout: jsonPayload})
	require.NoError(t, reg.Load(context.Background()))
	return reg
}

func TestLoadAndEnumerate(t *testing.T) {
	t.Parallel()

	reg := loadedRegistry(t, `[
		{"name":"prod","url":"https://vault.prod.example:8200","verify":true},
		{"name":"staging","url":"https://vault.staging.example:8200","verify":false}
	]`)

	all := reg.Enumerate(registry.Filter{})
	assert.Len(t, all, 2)

	prodOnly := reg.Enumerate(registry.Filter{Name: "prod"})
	require.Len(t, prodOnly, 1)
	assert.Equal(t, "prod", prodOnly[0].Name)
}

func TestResolveByAlias(t *testing.T) {
	t.Parallel()

	reg := loadedRegistry(t, `[{"name":"prod","url":"https://vault.prod.example:8200","verify":true}]`)

	matches, err := reg.Resolve("prod")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "prod", matches[0].Name)
}

func TestResolveByURLReturnsAllAliases(t *testing.T) {
	t.Parallel()

	reg := loadedRegistry(t, `[
		{"name":"prod-a","url":"https://vault.prod.example:8200","verify":true},
		{"name":"prod-b","url":"https://vault.prod.example:8200","verify":true}
	]`)

	matches, err := reg.Resolve("https://vault.prod.example:8200")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestResolveUnknownAliasFails(t *testing.T) {
	t.Parallel()

	reg := loadedRegistry(t, `[]`)
	_, err := reg.Resolve("nope")
	assert.Error(t, err)
}

func TestSelectInteractiveSingleCandidateShortCircuits(t *testing.T) {
	t.Parallel()

	reg := registry.New(fakeExecutor{})
	only := store.Target{Name: "only", URL: "https://vault.example:8200"}

	chosen, err := reg.SelectInteractive([]store.Target{only})
	require.NoError(t, err)
	assert.Equal(t, only, chosen)
}

func TestSelectInteractiveUsesPromptHook(t *testing.T) {
	reg := registry.New(fakeExecutor{})
	candidates := []store.Target{
		{Name: "a", URL: "https://a.example:8200"},
		{Name: "b", URL: "https://b.example:8200"},
	}
	reg.Prompt = func(options []store.Target) (store.Target, error) {
		return options[1], nil
	}

	t.Setenv("SSH_TTY", "/dev/pts/0")

	chosen, err := reg.SelectInteractive(candidates)
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.Name)
}

func TestSelectInteractiveNoCandidatesErrors(t *testing.T) {
	t.Parallel()

	reg := registry.New(fakeExecutor{})
	_, err := reg.SelectInteractive(nil)
	assert.Error(t, err)
}
