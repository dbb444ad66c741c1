package commands

import (
	"fmt"

	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/internal/planvalidate"
	"github.com/genesis-deploy/genesis/internal/reactor"
	"github.com/genesis-deploy/genesis/internal/secretplan"
	"github.com/spf13/cobra"
)

// NewCheckCommand builds `genesis check <env>`: runs the pipeline's check
// phase (kit check hook, secret validation, stemcell resolution) without
// composing a manifest or touching the BOSH driver.
func NewCheckCommand(cfg *config.Config) *cobra.Command {
	var features []string

	cmd := &cobra.Command{
		Use:   "check <env>",
		Short: "Run pre-deploy checks for an environment without deploying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envName := args[0]
			env, meta, err := loadEnvAndKit(cfg, envName)
			if err != nil {
				return err
			}
			feats := featuresOrKit(env, features)

			plans := secretplan.Parse(meta, feats, secretplan.Options{RootCAPath: env.Genesis.RootCAPath, Validate: true})
			plans = planorderOrDefault(plans, env.Genesis.RootCAPath)

			store, err := cfg.ResolveStore(cmd.Context(), "")
			if err != nil {
				return err
			}

			r := reactor.New(reactor.Deps{
				Log:       cfg.Logger,
				Composer:  buildComposer(cfg, meta),
				Hooks:     hookrunner.New(cfg.GCTX.Executor),
				Validator: planvalidate.New(store),
				Store:     store,
			})

			opts := reactor.Options{
				Env:      env,
				Kit:      meta,
				Plans:    plans,
				Features: feats,
			}
			report, err := r.Check(cmd.Context(), opts)
			if err != nil {
				printCheckReport(report)
				return err
			}
			printCheckReport(report)
			cfg.Logger.Info("check passed for %s", envName)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&features, "features", nil, "Override the environment file's declared kit features")
	return cmd
}

func printCheckReport(report *reactor.CheckReport) {
	if report == nil {
		return
	}
	if report.HookRan {
		fmt.Printf("check hook: %s\n", statusLabel(report.HookResult))
	}
	for _, res := range report.SecretResults {
		fmt.Printf("  %s %-7s %s\n", logging.StatusGlyph(string(res.Status)), res.Status, res.Plan.Path)
	}
	for _, missing := range report.MissingConfigs {
		fmt.Printf("  missing config: %s\n", missing)
	}
	for key, version := range report.Stemcells {
		fmt.Printf("  stemcell %s -> %s\n", key, version)
	}
}

func statusLabel(res hookrunner.Result) string {
	if res.Err != nil {
		return "failed: " + res.Err.Error()
	}
	return "ok"
}

// planorderOrDefault orders plans for a root CA path (an empty rootCAPath
// included), returning an empty plan list unchanged.
func planorderOrDefault(plans []secretplan.Plan, rootCAPath string) []secretplan.Plan {
	if len(plans) == 0 {
		return plans
	}
	return orderPlans(plans, rootCAPath)
}
