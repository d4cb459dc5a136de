// Package scoring turns provider records into the risk scores used by the
// market and launch alert cycles.
package scoring

import (
	"github.com/shopspring/decimal"

	"launch-alerts/internal/fetcher"
	"launch-alerts/internal/resilience"
)

// Input is everything known about one watchlist entry at scoring time.
type Input struct {
	Ticker string
	IsMeme bool
	Market *fetcher.MarketData
	Dex    *fetcher.DexData
}

// Result is a 0-100 score where higher means safer.
type Result struct {
	Score   int
	Level   string
	Factors []string
}

// TopFactor returns the first factor or an empty string.
func (r Result) TopFactor() string {
	if len(r.Factors) == 0 {
		return ""
	}
	return r.Factors[0]
}

// Scorer scores a watchlist entry.
type Scorer interface {
	Score(in Input) (Result, error)
}

// Heuristic is the built-in rule based scorer.
type Heuristic struct{}

var _ Scorer = Heuristic{}

type band struct {
	min    float64
	points int
	factor string
}

var (
	marketCapBands = []band{
		{100e9, 30, "✅ Mega-cap ($100B+) - Very stable"},
		{50e9, 28, "✅ Top-tier market cap ($50B+)"},
		{10e9, 25, "✅ Large cap ($10B+)"},
		{1e9, 20, "✅ Medium cap ($1B+)"},
		{100e6, 15, "⚠️ Small cap ($100M+)"},
		{10e6, 10, "⚠️ Micro cap ($10M+)"},
	}
	volumeBands = []band{
		{5e9, 20, "✅ Massive trading volume ($5B+)"},
		{1e9, 18, "✅ High trading volume ($1B+)"},
		{100e6, 15, "✅ Good volume ($100M+)"},
		{10e6, 12, "✅ Moderate volume ($10M+)"},
		{1e6, 8, "⚠️ Low volume ($1M+)"},
	}
	communityBands = []band{
		{80, 15, "✅ Exceptional community (80+)"},
		{70, 13, "✅ Strong community (70+)"},
		{50, 10, "✅ Good community (50+)"},
		{30, 6, "⚠️ Moderate community (30+)"},
	}
	developerBands = []band{
		{80, 15, "✅ Exceptional development (80+)"},
		{70, 13, "✅ Active development (70+)"},
		{50, 10, "✅ Good development (50+)"},
		{30, 6, "⚠️ Moderate development (30+)"},
	}
)

func pick(v float64, bands []band, floor int, floorFactor string) (int, string) {
	for _, b := range bands {
		if v > b.min {
			return b.points, b.factor
		}
	}
	return floor, floorFactor
}

// Score implements Scorer. Meme tokens without CoinGecko coverage are scored
// from their DEX pair alone.
func (Heuristic) Score(in Input) (Result, error) {
	if in.Market == nil && in.Dex == nil {
		return Result{}, resilience.Invalid("ticker", "no market or dex data for %s", in.Ticker)
	}

	var (
		score   int
		factors []string
	)
	add := func(points int, factor string) {
		score += points
		factors = append(factors, factor)
	}

	marketCap, volume := 0.0, 0.0
	var change24h, change7d, change30d float64
	if m := in.Market; m != nil {
		marketCap = m.MarketCap.InexactFloat64()
		volume = m.Volume24h.InexactFloat64()
		change24h = m.Change24hPct.InexactFloat64()
		change7d = m.Change7dPct.InexactFloat64()
		change30d = m.Change30dPct.InexactFloat64()
	} else {
		marketCap = in.Dex.FDV.InexactFloat64()
		volume = in.Dex.Volume24h.InexactFloat64()
		change24h = in.Dex.Change24hPct.InexactFloat64()
	}

	add(pick(marketCap, marketCapBands, 5, "❌ Nano cap (<$10M) - High risk"))
	add(pick(volume, volumeBands, 3, "❌ Very low volume (<$1M)"))

	if marketCap > 0 {
		ratio := volume / marketCap * 100
		switch {
		case ratio >= 1 && ratio <= 10:
			add(5, "✅ Healthy volume/mcap ratio")
		case ratio > 20:
			add(-3, "⚠️ Abnormally high volume - possible pump")
		}
	}

	if m := in.Market; m != nil {
		add(pick(m.CommunityScore.InexactFloat64(), communityBands, 2, "❌ Weak community (<30)"))
		add(pick(m.DeveloperScore.InexactFloat64(), developerBands, 2, "❌ Low development activity (<30)"))
	}

	add(volatility(abs(change24h), abs(change7d)))

	switch {
	case change24h > 0 && change7d > 0 && change30d > 0:
		add(3, "✅ Consistent uptrend across all timeframes")
	case change24h < 0 && change7d < 0 && change30d < 0:
		add(-3, "❌ Consistent downtrend across all timeframes")
	}

	if d := in.Dex; d != nil && d.LiquidityUSD.IsPositive() {
		liquidity := d.LiquidityUSD.InexactFloat64()
		switch {
		case liquidity > 10e6:
			add(5, "✅ Excellent liquidity ($10M+)")
		case liquidity > 1e6:
			add(4, "✅ Good liquidity ($1M+)")
		case liquidity > 100e3:
			add(2, "⚠️ Moderate liquidity ($100K+)")
		default:
			add(-2, "❌ Low liquidity (<$100K)")
		}
	}

	if m := in.Market; m != nil && !m.ATHChangePct.IsZero() {
		ath := m.ATHChangePct.InexactFloat64()
		switch {
		case ath > -20:
			add(3, "✅ Near all-time high")
		case ath < -80:
			add(2, "💡 Deep discount from ATH (-80%+)")
		}
	}

	score = max(0, min(100, score))
	return Result{Score: score, Level: Level(score), Factors: factors}, nil
}

func volatility(c24, c7 float64) (int, string) {
	switch {
	case c24 < 3 && c7 < 10:
		return 20, "✅ Very low volatility - Stable"
	case c24 < 5 && c7 < 15:
		return 17, "✅ Low volatility"
	case c24 < 10 && c7 < 30:
		return 14, "✅ Moderate volatility"
	case c24 < 20 && c7 < 50:
		return 10, "⚠️ High volatility"
	case c24 < 40:
		return 6, "⚠️ Very high volatility"
	default:
		return 3, "❌ Extreme volatility (>40% in 24h)"
	}
}

// Level maps a 0-100 score to its label.
func Level(score int) string {
	switch {
	case score >= 80:
		return "🟢 VERY LOW RISK"
	case score >= 70:
		return "🟢 LOW RISK"
	case score >= 60:
		return "🟡 LOW-MEDIUM RISK"
	case score >= 50:
		return "🟡 MEDIUM RISK"
	case score >= 40:
		return "🟠 MEDIUM-HIGH RISK"
	case score >= 30:
		return "🟠 HIGH RISK"
	default:
		return "🔴 VERY HIGH RISK"
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
