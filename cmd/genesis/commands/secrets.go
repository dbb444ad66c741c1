package commands

import (
	"fmt"

	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/internal/planexec"
	"github.com/genesis-deploy/genesis/internal/policy"
	"github.com/genesis-deploy/genesis/internal/secretplan"
	"github.com/spf13/cobra"
)

// NewSecretsCommand creates the parent 'secrets' command.
func NewSecretsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Add, recreate, renew, or remove a kit's materialized credentials",
		Long: `Drive the credentials a kit declares through the store, one plan at a
time, in signing order.

Examples:
  genesis secrets add staging
  genesis secrets renew staging --filter '/tls/'
  genesis secrets check staging`,
	}

	cmd.AddCommand(
		newSecretsActionCommand(cfg, "add", planexec.ActionAdd),
		newSecretsActionCommand(cfg, "recreate", planexec.ActionRecreate),
		newSecretsActionCommand(cfg, "renew", planexec.ActionRenew),
		newSecretsActionCommand(cfg, "remove", planexec.ActionRemove),
		NewSecretsCheckCommand(cfg),
		NewSecretsValidateCommand(cfg),
	)
	return cmd
}

// newSecretsActionCommand builds one of the four batch-mutating secrets
// subcommands; they differ only in the planexec.Action they run.
func newSecretsActionCommand(cfg *config.Config, use string, action planexec.Action) *cobra.Command {
	var (
		features []string
		filter   string
	)

	cmd := &cobra.Command{
		Use:   use + " <env>",
		Short: fmt.Sprintf("%s every credential a kit declares", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envName := args[0]
			env, meta, err := loadEnvAndKit(cfg, envName)
			if err != nil {
				return err
			}
			feats := featuresOrKit(env, features)

			opts := secretplan.Options{RootCAPath: env.Genesis.RootCAPath, Validate: true}
			if filter != "" {
				f, err := secretplan.ParseFilter(filter)
				if err != nil {
					return err
				}
				opts.Filter = f
			}
			plans := secretplan.Parse(meta, feats, opts)
			plans = orderPlans(plans, env.Genesis.RootCAPath)

			store, err := cfg.ResolveStore(cmd.Context(), "")
			if err != nil {
				return err
			}

			exec := planexec.New(store, cfg.Logger)
			results, err := exec.Run(cmd.Context(), plans, action, progressCallback())

			counts := policy.Counts{}
			for _, res := range results {
				counts.Add(string(res.Status))
				fmt.Printf("  %s %-8s %-7s %s\n", logging.StatusGlyph(string(res.Status)), res.Status, action, res.Plan.Path)
			}

			p := policy.Policy{Strict: false}
			if err == nil && p.ExitNonZero(counts) {
				return fmt.Errorf("%s completed with %d error(s), %d missing", action, counts.Error, counts.Missing)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&features, "features", nil, "Override the environment file's declared kit features")
	cmd.Flags().StringVar(&filter, "filter", "", "Slash-delimited path filter, e.g. '/tls/' or '!/ca/i'")
	return cmd
}

func progressCallback() planexec.Callback {
	return func(ev planexec.Event) {
		switch ev.Kind {
		case planexec.EventInit:
			fmt.Printf("running against %d plan(s)\n", ev.Total)
		case planexec.EventAbort:
			fmt.Printf("aborted: %s\n", ev.Message)
		}
	}
}
