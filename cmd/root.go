// Package cmd assembles the cycle tracker command line
package cmd

import (
	"fmt"

	"github.com/giygas/cycletracker/cmd/report"
	"github.com/giygas/cycletracker/cmd/serve"
	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/logging"
	"github.com/spf13/cobra"
)

// RootCommand creates and returns the root command. Configuration comes from the
// environment and is loaded once, before any subcommand runs.
func RootCommand() *cobra.Command {
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:           "cycletracker",
		Short:         "Track administrations and model residual serum levels",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var logLevel string
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		*cfg = *loaded
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		if err := logging.InitLoggerWithRetentionAndSize(cfg.LogDir, cfg.Env, cfg.LogLevel, cfg.LogRetentionWeeks, cfg.MaxLogFileSize); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	}

	rootCmd.AddCommand(
		serve.Command(cfg),
		report.Command(cfg),
	)

	return rootCmd
}
