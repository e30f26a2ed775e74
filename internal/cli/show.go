package cli

import (
	"github.com/spf13/cobra"

	"presyo-watcher/internal/app"
)

var (
	showLimit int
	showRuns  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored market items or recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit, Runs: showRuns})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 50, "Maximum rows to display")
	showCmd.Flags().BoolVar(&showRuns, "runs", false, "List recent integration runs instead of market items")
}
