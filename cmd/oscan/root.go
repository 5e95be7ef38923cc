package main

import (
	"github.com/spf13/cobra"

	"oscan-intake/internal/config"
	"oscan-intake/internal/logging"
)

// cfg is loaded once before any subcommand runs.
var cfg config.Config

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "oscan",
		Short:        "O-Scan intake assistant and notification service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logging.Configure(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTestEmailCmd(),
		newEmitCmd(),
		newModelsCmd(),
	)
	return root
}
