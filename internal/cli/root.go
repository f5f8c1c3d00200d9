// Package cli holds the notifyd commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/notifykit/internal/app"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "notifyd",
	Short: "Notification dispatch engine",
	Long: "notifyd delivers email, chat bot and webhook notifications with retries,\n" +
		"per-channel circuit breakers and a delivery ledger.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		files, _ := cmd.Flags().GetStringSlice("env-file")
		if len(files) == 0 {
			return nil
		}
		return config.LoadEnv(files...)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Load variables from these .env files before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig reads and validates the environment, then builds the logger.
func loadConfig() (app.Config, *slog.Logger, error) {
	var cfg app.Config
	if err := config.Load(&cfg); err != nil {
		return app.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.NewFromConfig(cfg.Log)
	if err != nil {
		return app.Config{}, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}
