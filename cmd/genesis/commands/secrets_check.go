package commands

import (
	"fmt"

	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/internal/planvalidate"
	"github.com/genesis-deploy/genesis/internal/policy"
	"github.com/genesis-deploy/genesis/internal/secretplan"
	"github.com/spf13/cobra"
)

// NewSecretsCheckCommand builds `genesis secrets check <env>`: validates
// every materialized credential against its plan, failing only on an
// error or a missing secret.
func NewSecretsCheckCommand(cfg *config.Config) *cobra.Command {
	return newSecretsValidateLike(cfg, "check", false)
}

// NewSecretsValidateCommand builds `genesis secrets validate <env>`: the
// same pass as check, but in strict mode so a warning (e.g. an
// expiring certificate, a signer mismatch) also fails the exit status.
func NewSecretsValidateCommand(cfg *config.Config) *cobra.Command {
	return newSecretsValidateLike(cfg, "validate", true)
}

func newSecretsValidateLike(cfg *config.Config, use string, strict bool) *cobra.Command {
	var features []string

	cmd := &cobra.Command{
		Use:   use + " <env>",
		Short: "Validate materialized credentials against their plans",
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

			export, err := store.Export(cmd.Context(), secretsMount(env))
			if err != nil {
				return err
			}

			v := planvalidate.New(store)
			results := v.ValidateAll(cmd.Context(), plans, export)

			counts := policy.Counts{}
			for _, res := range results {
				counts.Add(string(res.Status))
				fmt.Printf("  %s %-7s %s\n", logging.StatusGlyph(string(res.Status)), res.Status, res.Plan.Path)
				if res.Message != "" {
					fmt.Printf("          %s\n", res.Message)
				}
			}

			p := policy.Policy{Strict: strict}
			if p.ExitNonZero(counts) {
				return fmt.Errorf("%d error(s), %d missing, %d warning(s)", counts.Error, counts.Missing, counts.Warn)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&features, "features", nil, "Override the environment file's declared kit features")
	return cmd
}

