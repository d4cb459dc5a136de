package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Repository used when no database is
// configured and by tests. It is safe for concurrent use.
type MemoryStore struct {
	mu sync.Mutex

	// Now is the clock used for due-event windows and timestamps.
	Now func() time.Time

	users      []memUser
	watchlists map[int64][]WatchItem
	events     []LaunchEvent
	nextEvent  int64
	lastReport map[int64]time.Time
	positions  map[int64][]Position
	alerts     []AlertRecord
	nextAlert  int64
	locks      map[int64]bool
}

type memUser struct {
	id      int64
	enabled bool
}

var (
	_ Repository     = (*MemoryStore)(nil)
	_ AdvisoryLocker = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:        time.Now,
		watchlists: make(map[int64][]WatchItem),
		lastReport: make(map[int64]time.Time),
		positions:  make(map[int64][]Position),
		locks:      make(map[int64]bool),
	}
}

// AddUser registers a user; re-adding updates alertsEnabled.
func (m *MemoryStore) AddUser(id int64, alertsEnabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].id == id {
			m.users[i].enabled = alertsEnabled
			return
		}
	}
	m.users = append(m.users, memUser{id: id, enabled: alertsEnabled})
}

// AddWatchItem prepends a ticker to the user's watchlist, mirroring the
// newest-first order of the database.
func (m *MemoryStore) AddWatchItem(userID int64, item WatchItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.Ticker = strings.ToUpper(item.Ticker)
	for _, existing := range m.watchlists[userID] {
		if existing.Ticker == item.Ticker {
			return
		}
	}
	m.watchlists[userID] = append([]WatchItem{item}, m.watchlists[userID]...)
}

// AddPosition stores a holding for the user.
func (m *MemoryStore) AddPosition(pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos.AssetType == "" {
		pos.AssetType = "crypto"
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = m.Now().UTC()
	}
	m.positions[pos.UserID] = append(m.positions[pos.UserID], pos)
}

// ListActiveUsers implements UserStore.
func (m *MemoryStore) ListActiveUsers(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for _, u := range m.users {
		if u.enabled {
			ids = append(ids, u.id)
		}
	}
	return ids, nil
}

// GetWatchlist implements UserStore.
func (m *MemoryStore) GetWatchlist(_ context.Context, userID int64) ([]WatchItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WatchItem(nil), m.watchlists[userID]...), nil
}

// SaveEvent implements EventStore.
func (m *MemoryStore) SaveEvent(_ context.Context, ev LaunchEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.EventDate = ev.EventDate.UTC()
	for _, existing := range m.events {
		if existing.Asset == ev.Asset && existing.EventType == ev.EventType && existing.EventDate.Equal(ev.EventDate) {
			return false, nil
		}
	}
	m.nextEvent++
	ev.ID = m.nextEvent
	ev.Notified = false
	ev.CreatedAt = m.Now().UTC()
	m.events = append(m.events, ev)
	return true, nil
}

// GetDueEvents implements EventStore.
func (m *MemoryStore) GetDueEvents(_ context.Context, daysBefore int) ([]LaunchEvent, error) {
	from, to := DueWindow(m.Now(), daysBefore)
	return m.eventsBetween(from, to, true), nil
}

// ListUpcomingEvents implements EventStore.
func (m *MemoryStore) ListUpcomingEvents(_ context.Context, days int) ([]LaunchEvent, error) {
	from, _ := DueWindow(m.Now(), 0)
	return m.eventsBetween(from, from.AddDate(0, 0, days+1), false), nil
}

func (m *MemoryStore) eventsBetween(from, to time.Time, pendingOnly bool) []LaunchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LaunchEvent, 0)
	for _, ev := range m.events {
		if ev.EventDate.Before(from) || !ev.EventDate.Before(to) {
			continue
		}
		if pendingOnly && ev.Notified {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].EventDate.Before(out[j].EventDate)
	})
	return out
}

// IsEventNotified implements EventStore.
func (m *MemoryStore) IsEventNotified(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.event(id)
	if ev == nil {
		return false, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return ev.Notified, nil
}

// UpdateEventAnalysis implements EventStore.
func (m *MemoryStore) UpdateEventAnalysis(_ context.Context, id int64, a EventAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.event(id)
	if ev == nil {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	ev.RiskScore = decimal.NewNullDecimal(a.RiskScore)
	ev.RiskLevel = a.RiskLevel
	ev.Confidence = decimal.NewNullDecimal(a.Confidence)
	ev.Summary = a.Summary
	ev.Suggestion = a.Suggestion
	return nil
}

// MarkEventNotified implements EventStore.
func (m *MemoryStore) MarkEventNotified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.event(id)
	if ev == nil {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if ev.Notified {
		return fmt.Errorf("event %d: %w", id, ErrAlreadyNotified)
	}
	ev.Notified = true
	return nil
}

func (m *MemoryStore) event(id int64) *LaunchEvent {
	for i := range m.events {
		if m.events[i].ID == id {
			return &m.events[i]
		}
	}
	return nil
}

// GetLastReportDate implements ReportStore.
func (m *MemoryStore) GetLastReportDate(_ context.Context, userID int64) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.lastReport[userID]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

// MarkReportSent implements ReportStore.
func (m *MemoryStore) MarkReportSent(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReport[userID] = m.Now().UTC()
	return nil
}

// GetPositions implements PortfolioStore.
func (m *MemoryStore) GetPositions(_ context.Context, userID int64) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Position(nil), m.positions[userID]...), nil
}

// UpdatePositionPrice implements PortfolioStore.
func (m *MemoryStore) UpdatePositionPrice(_ context.Context, userID int64, asset string, price decimal.Decimal) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.positions[userID] {
		pos := &m.positions[userID][i]
		if pos.Asset != asset {
			continue
		}
		pos.CurrentPrice = price
		pos.ProfitLoss = price.Sub(pos.EntryPrice).Mul(pos.Quantity)
		pos.ProfitLossPct = decimal.Zero
		if pos.EntryPrice.IsPositive() {
			pos.ProfitLossPct = price.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100))
		}
		pos.UpdatedAt = m.Now().UTC()
		return *pos, nil
	}
	return Position{}, fmt.Errorf("position %d/%s: %w", userID, asset, ErrNotFound)
}

// InsertAlert implements AlertStore.
func (m *MemoryStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlert++
	alert.ID = m.nextAlert
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.Now().UTC()
	}
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// ListRecentAlerts implements AlertStore.
func (m *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AlertRecord, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

// LastAlert implements AlertStore.
func (m *MemoryStore) LastAlert(_ context.Context, userID int64, ticker, alertType string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	found := false
	for _, a := range m.alerts {
		if a.UserID == userID && a.Ticker == ticker && a.AlertType == alertType && a.CreatedAt.After(last) {
			last = a.CreatedAt
			found = true
		}
	}
	return last, found, nil
}

// DeleteAlertsBefore implements AlertStore.
func (m *MemoryStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if !a.CreatedAt.Before(olderThan) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
	return nil
}

// TryAdvisoryLock implements AdvisoryLocker within one process.
func (m *MemoryStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return nil, false, nil
	}
	m.locks[key] = true
	return func() {
		m.mu.Lock()
		delete(m.locks, key)
		m.mu.Unlock()
	}, true, nil
}
