package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var runOnceCycle string

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Execute a single pass of one alert cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOnceCycle == "" {
			return errors.New("--cycle is required (market_alert, launch_event, weekly_report, price_drop)")
		}
		return getApp().RunOnce(cmd.Context(), runOnceCycle, cmd.OutOrStdout())
	},
}

func init() {
	runOnceCmd.Flags().StringVar(&runOnceCycle, "cycle", "", "Cycle to run")
}
