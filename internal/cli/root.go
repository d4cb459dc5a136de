package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"launch-alerts/internal/app"
	"launch-alerts/internal/config"
	"launch-alerts/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	dryRun    bool
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "launchalerts",
	Short: "Telegram alerts for crypto watchlists and portfolios",
	Long: `launchalerts runs four scheduled alert cycles against users' watchlists and portfolios:

  market_alert   scores watched tickers and alerts on strong signals
  launch_event   announces upcoming launches and unlocks once per event
  weekly_report  sends a portfolio summary at the configured weekday and hour
  price_drop     warns when a position falls below the loss threshold

Outbound calls to the market, DEX and Telegram APIs share per-service rate
limits, circuit breakers and retries. Without database.dsn an in-memory store
is used.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if dryRun {
			cfg.Telegram.Enabled = false
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them to Telegram")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runOnceCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
