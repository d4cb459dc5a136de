package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every enabled alert cycle until interrupted",
	Long: `Starts each enabled cycle on its own schedule, plus the /health and /metrics
server when monitor.enabled is set. SIGINT or SIGTERM lets an in-flight pass
finish its current candidate before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
