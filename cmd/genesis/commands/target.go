package commands

import (
	"fmt"

	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/genesis-deploy/genesis/internal/registry"
	"github.com/spf13/cobra"
)

// NewTargetCommand builds `genesis target [alias-or-url]`: lists known
// credentials-store targets, or resolves and selects one as the
// process's default store.
func NewTargetCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target [alias-or-url]",
		Short: "List or select a credentials store target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Registry.Load(cmd.Context()); err != nil {
				return err
			}

			if len(args) == 0 {
				for _, t := range cfg.Registry.Enumerate(registry.Filter{}) {
					fmt.Printf("%-20s %s\n", t.Name, t.URL)
				}
				return nil
			}

			client, err := cfg.ResolveStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cfg.Logger.Info("targeting %s (%s)", client.Name(), client.Target().URL)
			return nil
		},
	}
	return cmd
}
