package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"bsf-dashboard/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the readings table and serve the dashboard (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	err := app.Run(cmd.Context(), cfg)
	slog.Info("shutting down")
	return err
}
