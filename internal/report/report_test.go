package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launch-alerts/internal/storage"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func fixedClock() func() time.Time {
	// Wednesday
	return func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
}

func TestGenerateEmptyPortfolio(t *testing.T) {
	store := storage.NewMemoryStore()
	g := NewGenerator(store, time.Monday, 9).WithClock(fixedClock())

	r, err := g.Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, r.HasPortfolio)
	assert.Zero(t, r.Positions)
	assert.Empty(t, r.Top)
}

func TestGenerateTotalsAndPerformers(t *testing.T) {
	store := storage.NewMemoryStore()
	add := func(asset, qty, entry, current string) {
		store.AddPosition(storage.Position{UserID: 1, Asset: asset, Quantity: d(qty), EntryPrice: d(entry)})
		_, err := store.UpdatePositionPrice(context.Background(), 1, asset, d(current))
		require.NoError(t, err)
	}
	add("BTC", "1", "100", "150")  // +50%
	add("ETH", "2", "50", "40")    // -20%
	add("SOL", "10", "10", "11")   // +10%
	add("DOGE", "100", "1", "0.5") // -50%
	add("ADA", "5", "2", "2")      // 0%

	g := NewGenerator(store, time.Monday, 9).WithClock(fixedClock())
	r, err := g.Generate(context.Background(), 1)
	require.NoError(t, err)

	require.True(t, r.HasPortfolio)
	assert.Equal(t, 5, r.Positions)
	assert.Equal(t, 2, r.Profitable)
	assert.Equal(t, 2, r.Losing)
	// cost 100+100+100+100+10 = 410, value 150+80+110+50+10 = 400
	assert.True(t, r.TotalCost.Equal(d("410")), r.TotalCost.String())
	assert.True(t, r.TotalValue.Equal(d("400")), r.TotalValue.String())
	assert.True(t, r.TotalPnL.Equal(d("-10")), r.TotalPnL.String())
	assert.True(t, r.TotalPnLPct.Equal(d("-2.44")), r.TotalPnLPct.String())
	assert.True(t, r.WinRatePct.Equal(d("40")), r.WinRatePct.String())

	require.Len(t, r.Top, 3)
	assert.Equal(t, []string{"BTC", "SOL", "ADA"}, []string{r.Top[0].Asset, r.Top[1].Asset, r.Top[2].Asset})
	require.Len(t, r.Worst, 2)
	assert.Equal(t, "DOGE", r.Worst[0].Asset)
	assert.Equal(t, "ETH", r.Worst[1].Asset)

	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), r.NextReport)
}

func TestNextReportOnReportDayRollsToNextWeek(t *testing.T) {
	g := NewGenerator(storage.NewMemoryStore(), time.Monday, 9)
	monday := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), g.NextReport(monday))
}
