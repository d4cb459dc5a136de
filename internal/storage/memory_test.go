package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestDueEventReturnedUntilNotified(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Now = fixedClock(now)

	inserted, err := store.SaveEvent(ctx, LaunchEvent{Asset: "ARB", EventType: "token_unlock", EventDate: now.AddDate(0, 0, 3).Add(2 * time.Hour)})
	require.NoError(t, err)
	require.True(t, inserted)
	_, err = store.SaveEvent(ctx, LaunchEvent{Asset: "OP", EventType: "listing", EventDate: now.AddDate(0, 0, 4)})
	require.NoError(t, err)

	due, err := store.GetDueEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ARB", due[0].Asset)

	require.NoError(t, store.MarkEventNotified(ctx, due[0].ID))

	due, err = store.GetDueEvents(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, due)

	err = store.MarkEventNotified(ctx, 1)
	assert.True(t, errors.Is(err, ErrAlreadyNotified))
	assert.False(t, IsError(err))
}

func TestSaveEventIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	when := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.SaveEvent(ctx, LaunchEvent{Asset: "SOL", EventType: "mainnet", EventDate: when})
	require.NoError(t, err)
	second, err := store.SaveEvent(ctx, LaunchEvent{Asset: "SOL", EventType: "mainnet", EventDate: when})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestUpdatePositionPriceComputesProfitLoss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AddPosition(Position{UserID: 7, Asset: "ETH", Quantity: decimal.NewFromInt(2), EntryPrice: decimal.NewFromInt(2000)})

	pos, err := store.UpdatePositionPrice(ctx, 7, "ETH", decimal.NewFromInt(1700))
	require.NoError(t, err)
	assert.True(t, pos.ProfitLoss.Equal(decimal.NewFromInt(-600)), pos.ProfitLoss.String())
	assert.True(t, pos.ProfitLossPct.Equal(decimal.NewFromInt(-15)), pos.ProfitLossPct.String())

	_, err = store.UpdatePositionPrice(ctx, 7, "BTC", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastAlertTracksNewestEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, found, err := store.LastAlert(ctx, 1, "BTC", AlertPriceDrop)
	require.NoError(t, err)
	assert.False(t, found)

	_, _ = store.InsertAlert(ctx, AlertRecord{UserID: 1, Ticker: "BTC", AlertType: AlertPriceDrop, CreatedAt: t0})
	_, _ = store.InsertAlert(ctx, AlertRecord{UserID: 1, Ticker: "BTC", AlertType: AlertPriceDrop, CreatedAt: t0.Add(time.Hour)})
	_, _ = store.InsertAlert(ctx, AlertRecord{UserID: 1, Ticker: "BTC", AlertType: AlertHighScore, CreatedAt: t0.Add(2 * time.Hour)})

	last, found, err := store.LastAlert(ctx, 1, "BTC", AlertPriceDrop)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, t0.Add(time.Hour), last)

	require.NoError(t, store.DeleteAlertsBefore(ctx, t0.Add(90*time.Minute)))
	recent, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, AlertHighScore, recent[0].AlertType)
}

func TestActiveUsersAndWatchlistOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AddUser(1, true)
	store.AddUser(2, false)
	store.AddUser(3, true)
	store.AddWatchItem(1, WatchItem{Ticker: "btc"})
	store.AddWatchItem(1, WatchItem{Ticker: "pepe", IsMeme: true})
	store.AddWatchItem(1, WatchItem{Ticker: "BTC"})

	users, err := store.ListActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, users)

	items, err := store.GetWatchlist(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []WatchItem{{Ticker: "PEPE", IsMeme: true}, {Ticker: "BTC"}}, items)
}

func TestMemoryAdvisoryLockIsExclusive(t *testing.T) {
	store := NewMemoryStore()
	unlock, ok, err := store.TryAdvisoryLock(context.Background(), 9)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.TryAdvisoryLock(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	_, ok, _ = store.TryAdvisoryLock(context.Background(), 9)
	assert.True(t, ok)
}

func TestIsError(t *testing.T) {
	assert.True(t, IsError(wrap("list active users", errors.New("conn reset"))))
	assert.True(t, IsError(ErrNotConfigured))
	assert.False(t, IsError(ErrNotFound))
	assert.False(t, IsError(errors.New("other")))
}

func TestDueWindow(t *testing.T) {
	from, to := DueWindow(time.Date(2026, 12, 30, 23, 59, 0, 0, time.UTC), 3)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}
