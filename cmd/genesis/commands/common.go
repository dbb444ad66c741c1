package commands

import (
	"os"
	"path/filepath"

	"github.com/genesis-deploy/genesis/internal/compose"
	"github.com/genesis-deploy/genesis/internal/config"
	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/internal/kit"
	"github.com/genesis-deploy/genesis/internal/planorder"
	"github.com/genesis-deploy/genesis/internal/secretplan"
)

// orderPlans sorts plans into x509 signing order against rootCAPath,
// the step every command that parses plans from a kit needs before
// handing them to the Plan Executor or the check-phase validator.
func orderPlans(plans []secretplan.Plan, rootCAPath string) []secretplan.Plan {
	return planorder.Order(plans, rootCAPath)
}

// kitDirPath resolves cfg.KitDir relative to cfg.Root unless it is
// already absolute.
func kitDirPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.KitDir) {
		return cfg.KitDir
	}
	return filepath.Join(cfg.Root, cfg.KitDir)
}

// loadEnvAndKit loads both the named environment file and the kit
// metadata it is deployed against, the pair every subcommand needs
// before it can touch the Composer, the Secret Plan Parser, or the
// Reactor.
func loadEnvAndKit(cfg *config.Config, envName string) (*compose.EnvironmentFile, *kit.Metadata, error) {
	envPath := filepath.Join(cfg.Root, envName+".yml")
	env, err := compose.LoadEnvironmentFile(envPath)
	if err != nil {
		return nil, nil, err
	}

	metaPath := filepath.Join(kitDirPath(cfg), "kit.yml")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, nil, genesiserrors.ConfigError{
			Field:      "kit",
			Value:      metaPath,
			Message:    "could not read kit metadata: " + err.Error(),
			Suggestion: "pass --kit pointing at the kit directory containing kit.yml",
		}
	}
	meta, err := kit.Load(raw)
	if err != nil {
		return nil, nil, err
	}
	return env, meta, nil
}

// buildComposer wires a Composer over cfg's root and kit directory,
// sourcing manifest fragments from the kit's manifests/<feature>.yml
// files and merging through spruce via the shared command executor.
func buildComposer(cfg *config.Config, meta *kit.Metadata) *compose.Composer {
	merger := compose.NewMerger(cfg.GCTX.Executor)
	composer := compose.NewComposer(cfg.Root, merger)
	composer.CacheDir = filepath.Join(cfg.Root, ".genesis", "manifests")
	composer.Fragments = compose.DirFragmentResolver(kitDirPath(cfg))
	composer.Kit = compose.KitInfo{Name: meta.Name, Version: meta.Version}
	return composer
}

// secretsMount mirrors the Reactor's own secrets-mount default (§6): an
// explicit mount, else an explicit legacy path, else "secret/<env>".
func secretsMount(env *compose.EnvironmentFile) string {
	if env.Genesis.SecretsMount != "" {
		return env.Genesis.SecretsMount
	}
	if env.Genesis.SecretsPath != "" {
		return env.Genesis.SecretsPath
	}
	return "secret/" + env.Genesis.Env
}

// featuresOrKit returns requested if non-empty, else every feature
// declared on the environment file's kit block.
func featuresOrKit(env *compose.EnvironmentFile, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return env.Kit.Features
}
