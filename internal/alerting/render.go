package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"launch-alerts/internal/fetcher"
	"launch-alerts/internal/report"
	"launch-alerts/internal/scoring"
	"launch-alerts/internal/storage"
)

const rule = "========================================"

// HighScore is the payload of a market alert.
type HighScore struct {
	Ticker string
	IsMeme bool
	Market *fetcher.MarketData
	Dex    *fetcher.DexData
	Result scoring.Result
}

// RenderHighScore renders a strong-signal market alert.
func RenderHighScore(h HighScore) string {
	kind := "💎 Crypto"
	if h.IsMeme {
		kind = "🔥 Meme Coin"
	}

	var price, change, mcap decimal.Decimal
	community := "N/A"
	switch {
	case h.Market != nil:
		price, change, mcap = h.Market.Price, h.Market.Change24hPct, h.Market.MarketCap
		community = h.Market.CommunityScore.StringFixed(0) + "/100"
	case h.Dex != nil:
		price, change, mcap = h.Dex.PriceUSD, h.Dex.Change24hPct, h.Dex.FDV
	}

	top := h.Result.TopFactor()
	if top == "" {
		top = "N/A"
	}

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("🚨 Strong Signal: %s %s\n\n", h.Ticker, kind))
	b.WriteString(fmt.Sprintf("Risk Score: %d/100 %s\n", h.Result.Score, h.Result.Level))
	b.WriteString(fmt.Sprintf("Price: $%s (%s%% 24h)\n", formatMoney(price, 8), signed(change)))
	b.WriteString(fmt.Sprintf("Market Cap: %s\n", formatLarge(mcap)))
	b.WriteString(fmt.Sprintf("Community: %s\n", community))
	if h.Dex != nil && h.Dex.LiquidityUSD.IsPositive() {
		b.WriteString(fmt.Sprintf("Liquidity: %s (%s)\n", formatLarge(h.Dex.LiquidityUSD), h.Dex.DexID))
	}
	b.WriteString(fmt.Sprintf("\nTop Factor: %s\n\n", top))
	b.WriteString("💡 This crypto is showing strong fundamentals!")
	return b.String()
}

// RenderLaunchEvent renders an upcoming-event alert with its analysis.
func RenderLaunchEvent(ev storage.LaunchEvent, a scoring.Analysis) string {
	kind := titleWords(strings.ReplaceAll(ev.EventType, "_", " "))

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("🚀 Upcoming Crypto Event: %s\n%s\n\n", ev.Asset, rule))
	b.WriteString(fmt.Sprintf("📅 %s: %s\n", kind, ev.EventDate.UTC().Format("Jan 02, 2006")))
	if ev.Description != "" {
		b.WriteString(fmt.Sprintf("📝 %s\n", ev.Description))
	}
	b.WriteString(fmt.Sprintf("📊 Risk Level: %s %s\n\n", a.RiskEmoji, a.RiskLevel))
	b.WriteString(fmt.Sprintf("💬 Summary: %s\n\n", a.Summary))
	b.WriteString(fmt.Sprintf("📈 Confidence: %s%%\n\n", a.Confidence.StringFixed(1)))
	b.WriteString("Risk Breakdown:\n")
	b.WriteString(fmt.Sprintf("• Fundamentals: %.1f/5.0\n", a.Breakdown.Fundamentals))
	b.WriteString(fmt.Sprintf("• Technical: %.1f/5.0\n", a.Breakdown.Technical))
	b.WriteString(fmt.Sprintf("• Sentiment: %.1f/5.0\n", a.Breakdown.Sentiment))
	b.WriteString(fmt.Sprintf("• Event Timing: %.1f/5.0\n\n", a.Breakdown.Timing))
	b.WriteString(fmt.Sprintf("💡 Suggestion: %s\n\n", a.Suggestion))
	b.WriteString("⚠️ This is automated analysis. Always DYOR.")
	return b.String()
}

// RenderPriceDrop renders a portfolio price-drop alert.
func RenderPriceDrop(pos storage.Position) string {
	b := strings.Builder{}
	b.WriteString("🚨 Price Drop Alert\n\n")
	b.WriteString(fmt.Sprintf("%s has dropped significantly!\n\n", pos.Asset))
	b.WriteString(fmt.Sprintf("📉 Change: %s%%\n", pos.ProfitLossPct.StringFixed(2)))
	b.WriteString(fmt.Sprintf("💰 Current Price: $%s\n", formatMoney(pos.CurrentPrice, 2)))
	b.WriteString(fmt.Sprintf("🎯 Entry Price: $%s\n\n", formatMoney(pos.EntryPrice, 2)))
	b.WriteString("⚠️ Consider reviewing this position.")
	return b.String()
}

var medals = []string{"🥇", "🥈", "🥉"}

// RenderWeeklyReport renders a weekly portfolio report. It must only be
// called for reports with HasPortfolio set.
func RenderWeeklyReport(r report.Report) string {
	pnlEmoji, pnlColor := "📈", "🟢"
	if r.TotalPnL.IsNegative() {
		pnlEmoji, pnlColor = "📉", "🔴"
	}

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("📊 Weekly Portfolio Report\n%s\n", rule))
	b.WriteString(fmt.Sprintf("📅 Week of %s\n\n", r.GeneratedAt.UTC().Format("January 02, 2006")))
	b.WriteString("Portfolio Overview:\n")
	b.WriteString(fmt.Sprintf("💼 Total Value: $%s\n", formatMoney(r.TotalValue, 2)))
	b.WriteString(fmt.Sprintf("%s Total P/L: $%s (%s%%) %s\n", pnlEmoji, formatMoney(r.TotalPnL, 2), signed(r.TotalPnLPct), pnlColor))
	b.WriteString(fmt.Sprintf("📊 Positions: %d\n", r.Positions))
	b.WriteString(fmt.Sprintf("✅ Profitable: %d\n", r.Profitable))
	b.WriteString(fmt.Sprintf("❌ Losing: %d\n", r.Losing))
	b.WriteString(fmt.Sprintf("🎯 Win Rate: %s%%\n\n", r.WinRatePct.StringFixed(1)))

	b.WriteString("🏆 Top Performers:\n")
	for i, p := range r.Top {
		b.WriteString(fmt.Sprintf("%s %s: %s%% ($%s)\n", medals[i%len(medals)], p.Asset, signed(p.ProfitLossPct), formatMoney(p.ProfitLoss, 2)))
	}
	b.WriteString("\n")

	if len(r.Worst) > 0 {
		b.WriteString("⚠️ Needs Attention:\n")
		for _, p := range r.Worst {
			b.WriteString(fmt.Sprintf("📉 %s: %s%% ($%s)\n", p.Asset, p.ProfitLossPct.StringFixed(2), formatMoney(p.ProfitLoss, 2)))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("📅 Next Report: %s\n\n", formatNextReport(r.NextReport)))
	b.WriteString("💡 Tip: Review underperforming assets and consider rebalancing.")
	return b.String()
}

func formatNextReport(t time.Time) string {
	return t.UTC().Format("Monday, January 2 at 3 PM UTC")
}

// formatMoney renders d with thousands separators and a fixed number of
// decimal places.
func formatMoney(d decimal.Decimal, places int32) string {
	s := d.Abs().StringFixed(places)
	intPart, frac, _ := strings.Cut(s, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String()
	if frac != "" {
		out += "." + frac
	}
	if d.IsNegative() {
		out = "-" + out
	}
	return out
}

var (
	billion  = decimal.NewFromInt(1_000_000_000)
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

func formatLarge(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(billion):
		return "$" + d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return "$" + d.Div(million).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(thousand):
		return "$" + d.Div(thousand).StringFixed(2) + "K"
	default:
		return "$" + d.StringFixed(2)
	}
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
