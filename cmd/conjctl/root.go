package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/conjunction/pkg/logger"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	root := &cobra.Command{
		Use:   "conjctl",
		Short: "Conjunction risk forecasting tools",
		Long: `conjctl forecasts conjunction events from a report file, generates
synthetic report feeds and writes model artifacts.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Logs go to stderr so stdout carries only results.
			if err := logger.InitWith(cmd.ErrOrStderr(), logFormat); err != nil {
				return err
			}
			return logger.SetLevelString(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(newForecastCmd(), newGenerateCmd(), newInitModelCmd())
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate("conjctl version {{.Version}}\n")
	return root
}
