package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"launch-alerts/internal/app"
)

var (
	showLimit  int
	showEvents bool
	showDays   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts or upcoming launch events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Events: showEvents,
			Days:   showDays,
		}

		return getApp().Show(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of alerts to display")
	showCmd.Flags().BoolVar(&showEvents, "events", false, "List upcoming launch events instead of alerts")
	showCmd.Flags().IntVar(&showDays, "days", 30, "Look-ahead window for --events")
}
