package cli

import (
	"github.com/spf13/cobra"

	"presyo-watcher/internal/app"
)

var (
	integrateDays   int
	integrateDryRun bool
)

var integrateCmd = &cobra.Command{
	Use:   "integrate",
	Short: "Run one integration over the trailing window and print the trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Integrate(cmd.Context(), app.IntegrateOptions{
			Days:   integrateDays,
			DryRun: integrateDryRun,
		})
	},
}

func init() {
	integrateCmd.Flags().IntVar(&integrateDays, "days", 0, "Trailing days to scan (defaults to trends.window_days)")
	integrateCmd.Flags().BoolVar(&integrateDryRun, "dry-run", false, "Run without writing to storage")
}
