package main

import (
	"fmt"
	"os"

	"github.com/genesis-deploy/genesis/cmd/genesis/commands"
	"github.com/genesis-deploy/genesis/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		root           string
		kitDir         string
		target         string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "genesis",
		Short: "Compose, check, and deploy BOSH environments from kits and secrets",
		Long: `genesis composes an environment's manifest from its kit and
environment files, checks the credentials a deploy will need, and drives
the BOSH CLI through the deploy pipeline.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			*cfg = *config.New(root, kitDir, debug, noColor, nonInteractive)
			if target != "" {
				if _, err := cfg.ResolveStore(cmd.Context(), target); err != nil {
					cfg.Logger.Warn("could not resolve --target %s yet: %v", target, err)
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&root, "root", ".", "Directory holding the environment file hierarchy")
	rootCmd.PersistentFlags().StringVar(&kitDir, "kit", "kit", "Kit directory (relative to --root unless absolute)")
	rootCmd.PersistentFlags().StringVar(&target, "target", "", "Credentials store target alias or URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Assume yes to any confirmation prompt")

	rootCmd.AddCommand(
		commands.NewCheckCommand(cfg),
		commands.NewManifestCommand(cfg),
		commands.NewDeployCommand(cfg),
		commands.NewSecretsCommand(cfg),
		commands.NewTargetCommand(cfg),
	)

	return rootCmd.Execute()
}
