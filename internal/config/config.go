// Package config holds the runtime state every genesis subcommand shares:
// the working root, the logger, the command executor, and the lazily
// loaded target Registry a command resolves a credentials-store client
// from. It is the explicit-context counterpart to a CLI's usual
// "global flags struct", built fresh once in cmd/genesis/main.go's
// PersistentPreRun and threaded into every command factory.
package config

import (
	"context"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/internal/gctx"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/internal/registry"
	"github.com/genesis-deploy/genesis/pkg/execenv"
	"github.com/genesis-deploy/genesis/pkg/store"
)

// Config is the shared runtime configuration passed to every command
// factory, mirroring the root-command-plus-global-flags shape the
// command layer is built around.
type Config struct {
	Root           string
	KitDir         string
	Logger         *logging.Logger
	NonInteractive bool

	GCTX     *gctx.Context
	Registry *registry.Registry
}

// New builds a Config rooted at root, wiring a fresh logger, the real
// command executor, a gctx.Context bound to both, and an unloaded
// target Registry.
func New(root, kitDir string, debug, noColor, nonInteractive bool) *Config {
	log := logging.New(debug, noColor)
	executor := execenv.DefaultExecutor()
	return &Config{
		Root:           root,
		KitDir:         kitDir,
		Logger:         log,
		NonInteractive: nonInteractive,
		GCTX:           gctx.New(log, executor),
		Registry:       registry.New(executor),
	}
}

// ResolveStore loads the target registry on first use and returns a
// Client bound to target. An empty target reuses the gctx.Context's
// already-selected default store, if any; otherwise the registry
// resolves target (alias or URL) and prompts interactively when more
// than one registered entry matches.
func (c *Config) ResolveStore(ctx context.Context, target string) (*store.Client, error) {
	if target == "" {
		if s := c.GCTX.DefaultStore(); s != nil {
			if client, ok := s.(*store.Client); ok {
				return client, nil
			}
		}
		return nil, genesiserrors.UserError{
			Message:    "no target specified and no default target is set",
			Suggestion: "pass --target, or run 'genesis target <alias>' to pick a default",
		}
	}

	if err := c.Registry.Load(ctx); err != nil {
		return nil, err
	}
	matches, err := c.Registry.Resolve(target)
	if err != nil {
		return nil, err
	}
	chosen, err := c.Registry.SelectInteractive(matches)
	if err != nil {
		return nil, err
	}

	client := store.New(chosen, c.GCTX.Executor)
	c.GCTX.SetCurrentStore(client)
	if c.GCTX.DefaultStore() == nil {
		c.GCTX.SetDefaultStore(client)
	}
	return client, nil
}
