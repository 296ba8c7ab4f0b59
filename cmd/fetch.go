package main

import (
	"github.com/spf13/cobra"

	"bsf-dashboard/internal/app"
)

var fetchOpts app.FetchOptions

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the readings once and print the filtered list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Fetch(cmd.Context(), cfg, fetchOpts, cmd.OutOrStdout())
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchOpts.Variant, "variant", "", "variant whose defaults apply (default: first variant)")
	fetchCmd.Flags().StringVar(&fetchOpts.Range, "range", "", "time range: All, Today, Past7Days, ThisMonth, Past10Minutes")
	fetchCmd.Flags().StringVar(&fetchOpts.Metric, "metric", "", "metric: Both, Temperature, Humidity")
	rootCmd.AddCommand(fetchCmd)
}
