package cli

import (
	"github.com/spf13/cobra"

	"presyo-watcher/internal/app"
)

var (
	parsePreset  string
	parseDateFlag   string
	parseExplain bool
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Extract commodity prices from a local report (PDF or text)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ParseOptions{Path: args[0], Preset: parsePreset, Explain: parseExplain}
		if parseDateFlag != "" {
			date, err := parseDate("date", parseDateFlag)
			if err != nil {
				return err
			}
			opts.Date = &date
		}
		return getApp().Parse(cmd.Context(), opts)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parsePreset, "preset", "", "Parser preset: conservative or permissive (defaults to config)")
	parseCmd.Flags().StringVar(&parseDateFlag, "date", "", "Report date to label the output with (YYYY-MM-DD)")
	parseCmd.Flags().BoolVar(&parseExplain, "explain", false, "List every line with its classification")
}
