package cli

import (
	"github.com/spf13/cobra"

	"launch-alerts/internal/app"
)

var (
	simulateChatID int64
	simulateTicker string
	simulateMeme   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "拉取行情并向指定 chat 发送一次市场告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			ChatID: simulateChatID,
			Ticker: simulateTicker,
			IsMeme: simulateMeme,
		}, cmd.OutOrStdout())
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateChatID, "chat-id", 0, "Telegram chat id")
	simulateCmd.Flags().StringVar(&simulateTicker, "ticker", "BTC", "资产代码或合约地址")
	simulateCmd.Flags().BoolVar(&simulateMeme, "meme", false, "同时查询 DEX 数据")
}
