package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/config"
	"launch-alerts/internal/fetcher"
	"launch-alerts/internal/resilience"
	"launch-alerts/internal/scoring"
)

// SimulateAlert 拉取真实行情并向指定 chat 发送一次市场告警, 不受阈值限制。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions, out io.Writer) error {
	if opts.ChatID == 0 {
		return errors.New("--chat-id 必须指定")
	}
	ticker := strings.ToUpper(strings.TrimSpace(opts.Ticker))
	if ticker == "" {
		return errors.New("--ticker 必须指定")
	}

	exec, err := a.newExecutor()
	if err != nil {
		return err
	}
	market, dex := a.newFetchers()

	in := scoring.Input{Ticker: ticker, IsMeme: opts.IsMeme}
	in.Market, err = resilience.Call(ctx, exec, config.ServiceMarketData, func(ctx context.Context) (*fetcher.MarketData, error) {
		return market.FetchMarketData(ctx, ticker)
	})
	if err != nil {
		return fmt.Errorf("fetch market data: %w", err)
	}
	if opts.IsMeme {
		in.Dex, err = resilience.Call(ctx, exec, config.ServiceDexData, func(ctx context.Context) (*fetcher.DexData, error) {
			return dex.FetchDexData(ctx, ticker)
		})
		if err != nil {
			return fmt.Errorf("fetch dex data: %w", err)
		}
	}

	res, err := scoring.Heuristic{}.Score(in)
	if err != nil {
		return err
	}
	text := alerting.RenderHighScore(alerting.HighScore{
		Ticker: ticker,
		IsMeme: opts.IsMeme,
		Market: in.Market,
		Dex:    in.Dex,
		Result: res,
	})
	fmt.Fprintln(out, text)

	messenger := a.newMessenger()
	return exec.Execute(ctx, config.ServiceTelegram, func(ctx context.Context) error {
		return messenger.SendMessage(ctx, opts.ChatID, text)
	})
}
