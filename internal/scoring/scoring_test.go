package scoring

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launch-alerts/internal/fetcher"
	"launch-alerts/internal/resilience"
	"launch-alerts/internal/storage"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestHeuristicLargeCapScoresHigh(t *testing.T) {
	res, err := Heuristic{}.Score(Input{
		Ticker: "BTC",
		Market: &fetcher.MarketData{
			MarketCap:      d("200000000000"),
			Volume24h:      d("10000000000"),
			CommunityScore: d("85"),
			DeveloperScore: d("90"),
			Change24hPct:   d("1"),
			Change7dPct:    d("2"),
			Change30dPct:   d("5"),
			ATHChangePct:   d("-10"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, "🟢 VERY LOW RISK", res.Level)
	assert.Equal(t, "✅ Mega-cap ($100B+) - Very stable", res.TopFactor())
}

func TestHeuristicDexOnlyMemeScoresLow(t *testing.T) {
	res, err := Heuristic{}.Score(Input{
		Ticker: "TINY",
		IsMeme: true,
		Dex: &fetcher.DexData{
			FDV:          d("50000"),
			Volume24h:    d("10000"),
			Change24hPct: d("50"),
			LiquidityUSD: d("20000"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 9, res.Score)
	assert.Equal(t, "🔴 VERY HIGH RISK", res.Level)
	assert.Contains(t, res.Factors, "❌ Low liquidity (<$100K)")
}

func TestHeuristicWithoutDataIsValidationError(t *testing.T) {
	_, err := Heuristic{}.Score(Input{Ticker: "NONE"})
	require.Error(t, err)
	assert.True(t, resilience.IsValidation(err))
}

func TestLevelBoundaries(t *testing.T) {
	assert.Equal(t, "🟢 LOW RISK", Level(70))
	assert.Equal(t, "🟡 LOW-MEDIUM RISK", Level(69))
	assert.Equal(t, "🟠 HIGH RISK", Level(30))
	assert.Equal(t, "🔴 VERY HIGH RISK", Level(0))
}

func TestLaunchHeuristicWithoutProviderData(t *testing.T) {
	a, err := LaunchHeuristic{}.Analyze(storage.LaunchEvent{Asset: "ARB", EventType: "mainnet_launch"}, Input{Ticker: "ARB"})
	require.NoError(t, err)

	assert.InDelta(t, 4.0, a.Breakdown.Timing, 1e-9)
	assert.InDelta(t, 2.975, a.RiskScore.InexactFloat64(), 0.01)
	assert.Equal(t, "Medium-High Risk", a.RiskLevel)
	assert.Equal(t, "🟠", a.RiskEmoji)
	assert.True(t, a.Confidence.Equal(decimal.NewFromInt(50)), "confidence %s", a.Confidence)
	assert.Equal(t, "Exercise caution with this launch.", a.Summary)
	assert.Equal(t, "High uncertainty. Wait for better setup or more data.", a.Suggestion)

	rec := a.Record()
	assert.Equal(t, a.RiskLevel, rec.RiskLevel)
	assert.True(t, rec.RiskScore.Equal(a.RiskScore))
}

func TestLaunchHeuristicLiquidDexLiftsTechnical(t *testing.T) {
	a, err := LaunchHeuristic{}.Analyze(storage.LaunchEvent{Asset: "PEPE", EventType: "listing"}, Input{
		Ticker: "PEPE",
		Dex: &fetcher.DexData{
			LiquidityUSD: d("25000000"),
			Buys24h:      300,
			Sells24h:     100,
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, a.Breakdown.Technical, 1e-9)
	assert.Equal(t, "Sufficient liquidity.", a.Summary)
	assert.True(t, a.Confidence.GreaterThan(decimal.NewFromInt(50)))
}
