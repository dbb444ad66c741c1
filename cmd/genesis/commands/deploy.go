package commands

import (
	"fmt"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/genesis-deploy/genesis/internal/exodus"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"github.com/genesis-deploy/genesis/internal/planvalidate"
	"github.com/genesis-deploy/genesis/internal/reactor"
	"github.com/genesis-deploy/genesis/internal/secretplan"
	"github.com/spf13/cobra"
)

// NewDeployCommand builds `genesis deploy <env>`: runs the full pipeline
// (check, manifest, pre-deploy, reactions, BOSH deploy, Exodus, post-
// deploy) against a target store and director.
func NewDeployCommand(cfg *config.Config) *cobra.Command {
	var (
		features   []string
		deployment string
		dryRun     bool
		extraArgs  []string
		stateFile  string
		minVersion string
	)

	cmd := &cobra.Command{
		Use:   "deploy <env>",
		Short: "Run the full deploy pipeline for an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envName := args[0]
			env, meta, err := loadEnvAndKit(cfg, envName)
			if err != nil {
				return err
			}
			feats := featuresOrKit(env, features)

			plans := secretplan.Parse(meta, feats, secretplan.Options{RootCAPath: env.Genesis.RootCAPath, Validate: true})
			plans = orderPlans(plans, env.Genesis.RootCAPath)

			store, err := cfg.ResolveStore(cmd.Context(), "")
			if err != nil {
				return err
			}

			bosh, err := boshdriver.Probe(cmd.Context(), cfg.GCTX.Executor, minVersion)
			if err != nil {
				return err
			}

			workDir := cfg.Root + "/.genesis/work"
			r := reactor.New(reactor.Deps{
				Log:         cfg.Logger,
				Composer:    buildComposer(cfg, meta),
				Hooks:       hookrunner.New(cfg.GCTX.Executor),
				Validator:   planvalidate.New(store),
				Bosh:        bosh,
				Exodus:      exodus.New(store, exodusMount(env.Genesis.ExodusMount)),
				Store:       store,
				GenesisRoot: cfg.Root,
				WorkDir:     workDir,
			})

			dep := deployment
			if dep == "" {
				dep = envName + "-" + meta.Name
			}

			res, err := r.Deploy(cmd.Context(), reactor.Options{
				Env:             env,
				Kit:             meta,
				Plans:           plans,
				Features:        feats,
				DryRun:          dryRun,
				NonInteractive:  cfg.NonInteractive,
				Deployment:      dep,
				ExtraDeployArgs: extraArgs,
				StateFile:       stateFile,
			})
			printDeployResult(res)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&features, "features", nil, "Override the environment file's declared kit features")
	cmd.Flags().StringVar(&deployment, "deployment", "", "BOSH deployment name (default <env>-<kit>)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the BOSH step but skip Exodus publication and post-deploy hooks")
	cmd.Flags().StringArrayVar(&extraArgs, "bosh-arg", nil, "Extra argument passed through to the bosh CLI")
	cmd.Flags().StringVar(&stateFile, "state", "", "BOSH state file (create-env only)")
	cmd.Flags().StringVar(&minVersion, "min-bosh-version", "", "Minimum required bosh CLI version")
	return cmd
}

func exodusMount(mount string) string {
	if mount == "" {
		return "secret/exodus"
	}
	return mount
}

func printDeployResult(res *reactor.Result) {
	if res == nil {
		return
	}
	for _, stage := range res.Stages {
		status := "ok"
		if stage.Err != nil {
			status = "failed: " + stage.Err.Error()
		}
		fmt.Printf("%-24s %s (%s)\n", stage.Stage, status, stage.Duration)
	}
	if res.Deployed {
		fmt.Println("deployed")
	}
	if res.ExodusPublished {
		fmt.Println("exodus record published")
	}
}
