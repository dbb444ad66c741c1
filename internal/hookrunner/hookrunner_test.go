package hookrunner_test

import (
	"context"
	"strings"
	"testing"

	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnvExecutor struct {
	gotEnv  []string
	gotName string
	gotArgs []string
}

func (f *fakeEnvExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f.ExecuteEnv(ctx, nil, name, args...)
}

func (f *fakeEnvExecutor) ExecuteEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	f.gotEnv = env
	f.gotName = name
	f.gotArgs = args
	return []byte("ok\n"), nil, nil
}

func TestRunKitHookPassesEnv(t *testing.T) {
	t.Parallel()

	fake := &fakeEnvExecutor{}
	runner := hookrunner.New(fake)

	res := runner.Run(context.Background(), hookrunner.Invocation{
		Variant: hookrunner.KitHook,
		Path:    "/kit/hooks/pre-deploy",
		Args:    []string{"deploy"},
		Env: map[string]string{
			"GENESIS_ENVIRONMENT": "staging",
		},
	})

	require.NoError(t, res.Err)
	assert.Equal(t, "/kit/hooks/pre-deploy", fake.gotName)
	assert.Equal(t, []string{"deploy"}, fake.gotArgs)

	found := false
	for _, kv := range fake.gotEnv {
		if kv == "GENESIS_ENVIRONMENT=staging" {
			found = true
		}
	}
	assert.True(t, found, "expected GENESIS_ENVIRONMENT to be set in child environment")
}

func TestRunKitHookClearsEmptyValuedEnvKeys(t *testing.T) {
	t.Setenv("BOSH_ALIAS", "leaked-from-parent")

	fake := &fakeEnvExecutor{}
	runner := hookrunner.New(fake)

	res := runner.Run(context.Background(), hookrunner.Invocation{
		Variant: hookrunner.KitHook,
		Path:    "/kit/hooks/pre-deploy",
		Env: map[string]string{
			"BOSH_ALIAS": "",
		},
	})

	require.NoError(t, res.Err)
	for _, kv := range fake.gotEnv {
		assert.False(t, strings.HasPrefix(kv, "BOSH_ALIAS="), "BOSH_ALIAS should be cleared, got %q", kv)
	}
}

func TestRunEmptyScriptPathErrors(t *testing.T) {
	t.Parallel()

	runner := hookrunner.New(&fakeEnvExecutor{})
	res := runner.Run(context.Background(), hookrunner.Invocation{Variant: hookrunner.ReactionScript})
	assert.Error(t, res.Err)
}

func TestRunAddonNotFound(t *testing.T) {
	t.Parallel()

	runner := hookrunner.New(&fakeEnvExecutor{})
	runner.AddonPath = []string{"/nonexistent"}
	res := runner.Run(context.Background(), hookrunner.Invocation{
		Variant: hookrunner.ReactionAddon,
		Path:    "vault-login",
	})
	assert.Error(t, res.Err)
}

func TestPrintEnvironmentMasksSecrets(t *testing.T) {
	t.Parallel()

	env := []string{
		"GENESIS_ENVIRONMENT=staging",
		"BOSH_CLIENT_SECRET=hunter2",
		"CREDHUB_SECRET=s3cr3t",
	}

	out := hookrunner.PrintEnvironment(env)

	assert.Contains(t, out, "GENESIS_ENVIRONMENT=staging")
	assert.Contains(t, out, "BOSH_CLIENT_SECRET=[REDACTED]")
	assert.Contains(t, out, "CREDHUB_SECRET=[REDACTED]")
	assert.False(t, strings.Contains(out, "hunter2"))
	assert.False(t, strings.Contains(out, "s3cr3t"))
}
