package commands

import (
	"fmt"

	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"github.com/genesis-deploy/genesis/internal/reactor"
	"github.com/spf13/cobra"
)

// NewManifestCommand builds `genesis manifest <env>`: composes and
// redacts the manifest, writing it (plus its vars file) to the work
// directory without deploying.
func NewManifestCommand(cfg *config.Config) *cobra.Command {
	var (
		features []string
		workDir  string
	)

	cmd := &cobra.Command{
		Use:   "manifest <env>",
		Short: "Render an environment's manifest without deploying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envName := args[0]
			env, meta, err := loadEnvAndKit(cfg, envName)
			if err != nil {
				return err
			}
			feats := featuresOrKit(env, features)

			store, err := cfg.ResolveStore(cmd.Context(), "")
			if err != nil {
				return err
			}

			if workDir == "" {
				workDir = cfg.Root + "/.genesis/work"
			}

			r := reactor.New(reactor.Deps{
				Log:         cfg.Logger,
				Composer:    buildComposer(cfg, meta),
				Hooks:       hookrunner.New(cfg.GCTX.Executor),
				Store:       store,
				GenesisRoot: cfg.Root,
				WorkDir:     workDir,
			})

			res, err := r.RenderManifest(cmd.Context(), reactor.Options{
				Env:      env,
				Kit:      meta,
				Features: feats,
			})
			if err != nil {
				return err
			}

			fmt.Println(res.RedactedManifestPath)
			fmt.Println(res.VarsPath)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&features, "features", nil, "Override the environment file's declared kit features")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Scratch directory for generated files (default <root>/.genesis/work)")
	return cmd
}
