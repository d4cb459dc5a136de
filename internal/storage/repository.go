package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	listActiveUsersSQL = `SELECT telegram_id
    FROM users
    WHERE alerts_enabled = true
    ORDER BY created_at, telegram_id;`

	getWatchlistSQL = `SELECT ticker, is_meme_coin
    FROM watchlist
    WHERE user_id = $1
    ORDER BY created_at DESC, id DESC;`

	insertEventSQL = `INSERT INTO launch_events (
        asset,
        event_type,
        event_date,
        description,
        source
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (asset, event_date, event_type) DO NOTHING;`

	eventColumns = `id,
        asset,
        event_type,
        event_date,
        description,
        source,
        notified,
        risk_score::text,
        risk_level,
        confidence::text,
        summary,
        suggestion,
        created_at`

	listDueEventsSQL = `SELECT ` + eventColumns + `
    FROM launch_events
    WHERE event_date >= $1
      AND event_date < $2
      AND notified = false
    ORDER BY event_date, id;`

	listUpcomingEventsSQL = `SELECT ` + eventColumns + `
    FROM launch_events
    WHERE event_date >= $1
      AND event_date < $2
    ORDER BY event_date, id;`

	isEventNotifiedSQL = `SELECT notified FROM launch_events WHERE id = $1;`

	updateEventAnalysisSQL = `UPDATE launch_events
    SET risk_score = $2::numeric,
        risk_level = $3,
        confidence = $4::numeric,
        summary    = $5,
        suggestion = $6
    WHERE id = $1;`

	markEventNotifiedSQL = `UPDATE launch_events
    SET notified = true
    WHERE id = $1
      AND notified = false;`

	getLastReportSQL  = `SELECT last_report_at FROM users WHERE telegram_id = $1;`
	markReportSentSQL = `UPDATE users SET last_report_at = $2 WHERE telegram_id = $1;`

	positionColumns = `user_id,
        asset,
        asset_type,
        quantity::text,
        entry_price::text,
        current_price::text,
        profit_loss::text,
        profit_loss_pct::text,
        last_updated`

	getPositionsSQL = `SELECT ` + positionColumns + `
    FROM portfolio
    WHERE user_id = $1
    ORDER BY date_added DESC;`

	updatePositionPriceSQL = `UPDATE portfolio
    SET current_price   = $3::numeric,
        profit_loss     = ($3::numeric - entry_price) * quantity,
        profit_loss_pct = CASE WHEN entry_price > 0
                               THEN ($3::numeric - entry_price) / entry_price * 100
                               ELSE 0 END,
        last_updated    = $4
    WHERE user_id = $1
      AND asset = $2
    RETURNING ` + positionColumns + `;`

	insertAlertSQL = `INSERT INTO alerts_log (
        user_id,
        ticker,
        alert_type,
        message,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, user_id, ticker, alert_type, message, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        user_id,
        ticker,
        alert_type,
        message,
        created_at
    FROM alerts_log
    ORDER BY created_at DESC
    LIMIT $1;`

	lastAlertSQL = `SELECT max(created_at)
    FROM alerts_log
    WHERE user_id = $1
      AND ticker = $2
      AND alert_type = $3;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts_log WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// UserStore reads subscriptions.
type UserStore interface {
	ListActiveUsers(ctx context.Context) ([]int64, error)
	GetWatchlist(ctx context.Context, userID int64) ([]WatchItem, error)
}

// EventStore persists launch events and their notified flag.
type EventStore interface {
	// SaveEvent inserts the event unless (asset, event_date, event_type) exists.
	SaveEvent(ctx context.Context, ev LaunchEvent) (inserted bool, err error)
	// GetDueEvents returns un-notified events dated exactly daysBefore days from today (UTC).
	GetDueEvents(ctx context.Context, daysBefore int) ([]LaunchEvent, error)
	ListUpcomingEvents(ctx context.Context, days int) ([]LaunchEvent, error)
	IsEventNotified(ctx context.Context, id int64) (bool, error)
	UpdateEventAnalysis(ctx context.Context, id int64, a EventAnalysis) error
	// MarkEventNotified flips notified once; later calls return ErrAlreadyNotified.
	MarkEventNotified(ctx context.Context, id int64) error
}

// ReportStore tracks weekly report delivery.
type ReportStore interface {
	GetLastReportDate(ctx context.Context, userID int64) (*time.Time, error)
	MarkReportSent(ctx context.Context, userID int64) error
}

// PortfolioStore reads positions and refreshes their prices.
type PortfolioStore interface {
	GetPositions(ctx context.Context, userID int64) ([]Position, error)
	UpdatePositionPrice(ctx context.Context, userID int64, asset string, price decimal.Decimal) (Position, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	LastAlert(ctx context.Context, userID int64, ticker, alertType string) (time.Time, bool, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Repository is everything the alert cycles consume.
type Repository interface {
	UserStore
	EventStore
	ReportStore
	PortfolioStore
	AlertStore
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL Repository.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, wrap("acquire connection", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, wrap("try advisory lock", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListActiveUsers returns users with alerts enabled.
func (s *Store) ListActiveUsers(ctx context.Context) ([]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listActiveUsersSQL)
	if err != nil {
		return nil, wrap("list active users", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrap("list active users", err)
	}
	return ids, nil
}

// GetWatchlist returns the user's watchlist, newest first.
func (s *Store) GetWatchlist(ctx context.Context, userID int64) ([]WatchItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, getWatchlistSQL, userID)
	if err != nil {
		return nil, wrap("get watchlist", err)
	}
	defer rows.Close()

	items := make([]WatchItem, 0)
	for rows.Next() {
		var item WatchItem
		if err := rows.Scan(&item.Ticker, &item.IsMeme); err != nil {
			return nil, wrap("get watchlist", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, wrap("get watchlist", rows.Err())
	}
	return items, nil
}

// SaveEvent inserts an event, ignoring duplicates.
func (s *Store) SaveEvent(ctx context.Context, ev LaunchEvent) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, insertEventSQL, ev.Asset, ev.EventType, ev.EventDate.UTC(), ev.Description, ev.Source)
	if err != nil {
		return false, wrap("save event", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetDueEvents lists un-notified events falling on today+daysBefore (UTC).
func (s *Store) GetDueEvents(ctx context.Context, daysBefore int) ([]LaunchEvent, error) {
	from, to := DueWindow(s.now(), daysBefore)
	return s.listEvents(ctx, "get due events", listDueEventsSQL, from, to)
}

// ListUpcomingEvents lists events from today through the next days days.
func (s *Store) ListUpcomingEvents(ctx context.Context, days int) ([]LaunchEvent, error) {
	from, _ := DueWindow(s.now(), 0)
	return s.listEvents(ctx, "list upcoming events", listUpcomingEventsSQL, from, from.AddDate(0, 0, days+1))
}

func (s *Store) listEvents(ctx context.Context, op, query string, from, to time.Time) ([]LaunchEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	events := make([]LaunchEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, wrap(op, rows.Err())
	}
	return events, nil
}

// IsEventNotified reads the notified flag.
func (s *Store) IsEventNotified(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var notified bool
	if err := pool.QueryRow(ctx, isEventNotifiedSQL, id).Scan(&notified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("event %d: %w", id, ErrNotFound)
		}
		return false, wrap("is event notified", err)
	}
	return notified, nil
}

// UpdateEventAnalysis stores the risk assessment on the event.
func (s *Store) UpdateEventAnalysis(ctx context.Context, id int64, a EventAnalysis) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, updateEventAnalysisSQL, id, a.RiskScore.String(), a.RiskLevel, a.Confidence.String(), a.Summary, a.Suggestion)
	if err != nil {
		return wrap("update event analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkEventNotified sets notified=true if it was false.
func (s *Store) MarkEventNotified(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, markEventNotifiedSQL, id)
	if err != nil {
		return wrap("mark event notified", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.IsEventNotified(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("event %d: %w", id, ErrAlreadyNotified)
}

// GetLastReportDate returns when the user's last weekly report was sent.
func (s *Store) GetLastReportDate(ctx context.Context, userID int64) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var last sql.NullTime
	if err := pool.QueryRow(ctx, getLastReportSQL, userID).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("get last report date", err)
	}
	if !last.Valid {
		return nil, nil
	}
	ts := last.Time.UTC()
	return &ts, nil
}

// MarkReportSent stamps the user's last report time with now.
func (s *Store) MarkReportSent(ctx context.Context, userID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, markReportSentSQL, userID, s.now().UTC()); err != nil {
		return wrap("mark report sent", err)
	}
	return nil
}

// GetPositions returns the user's portfolio.
func (s *Store) GetPositions(ctx context.Context, userID int64) ([]Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, getPositionsSQL, userID)
	if err != nil {
		return nil, wrap("get positions", err)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, wrap("get positions", err)
		}
		positions = append(positions, pos)
	}
	if rows.Err() != nil {
		return nil, wrap("get positions", rows.Err())
	}
	return positions, nil
}

// UpdatePositionPrice refreshes the current price and recomputes P/L.
func (s *Store) UpdatePositionPrice(ctx context.Context, userID int64, asset string, price decimal.Decimal) (Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return Position{}, err
	}
	row := pool.QueryRow(ctx, updatePositionPriceSQL, userID, asset, price.String(), s.now().UTC())
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, fmt.Errorf("position %d/%s: %w", userID, asset, ErrNotFound)
		}
		return Position{}, wrap("update position price", err)
	}
	return pos, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	var rec AlertRecord
	if err := pool.QueryRow(ctx, insertAlertSQL,
		alert.UserID,
		alert.Ticker,
		alert.AlertType,
		alert.Message,
		createdAt,
	).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Ticker,
		&rec.AlertType,
		&rec.Message,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, wrap("insert alert", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, wrap("list recent alerts", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Ticker,
			&rec.AlertType,
			&rec.Message,
			&rec.CreatedAt,
		); err != nil {
			return nil, wrap("list recent alerts", err)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, wrap("list recent alerts", rows.Err())
	}
	return alerts, nil
}

// LastAlert returns when the given alert was last logged for the user.
func (s *Store) LastAlert(ctx context.Context, userID int64, ticker, alertType string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	var last sql.NullTime
	if err := pool.QueryRow(ctx, lastAlertSQL, userID, ticker, alertType).Scan(&last); err != nil {
		return time.Time{}, false, wrap("last alert", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time.UTC(), true, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); err != nil {
		return wrap("delete alerts before", err)
	}
	return nil
}

// DueWindow is the UTC day [from, to) lying daysBefore days after now.
func DueWindow(now time.Time, daysBefore int) (time.Time, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, daysBefore)
	return day, day.AddDate(0, 0, 1)
}

func scanEvent(row pgx.Row) (LaunchEvent, error) {
	var (
		ev         LaunchEvent
		score      sql.NullString
		confidence sql.NullString
	)
	if err := row.Scan(
		&ev.ID,
		&ev.Asset,
		&ev.EventType,
		&ev.EventDate,
		&ev.Description,
		&ev.Source,
		&ev.Notified,
		&score,
		&ev.RiskLevel,
		&confidence,
		&ev.Summary,
		&ev.Suggestion,
		&ev.CreatedAt,
	); err != nil {
		return LaunchEvent{}, err
	}

	var err error
	if ev.RiskScore, err = parseNullDecimal(score); err != nil {
		return LaunchEvent{}, fmt.Errorf("parse risk score: %w", err)
	}
	if ev.Confidence, err = parseNullDecimal(confidence); err != nil {
		return LaunchEvent{}, fmt.Errorf("parse confidence: %w", err)
	}
	ev.EventDate = ev.EventDate.UTC()
	return ev, nil
}

func scanPosition(row pgx.Row) (Position, error) {
	var pos Position
	var qtyStr, entryStr, curStr, plStr, pctStr string
	if err := row.Scan(
		&pos.UserID,
		&pos.Asset,
		&pos.AssetType,
		&qtyStr,
		&entryStr,
		&curStr,
		&plStr,
		&pctStr,
		&pos.UpdatedAt,
	); err != nil {
		return Position{}, err
	}

	targets := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"quantity", qtyStr, &pos.Quantity},
		{"entry price", entryStr, &pos.EntryPrice},
		{"current price", curStr, &pos.CurrentPrice},
		{"profit loss", plStr, &pos.ProfitLoss},
		{"profit loss pct", pctStr, &pos.ProfitLossPct},
	}
	for _, t := range targets {
		v, err := decimal.NewFromString(t.raw)
		if err != nil {
			return Position{}, fmt.Errorf("parse %s: %w", t.name, err)
		}
		*t.dst = v
	}
	return pos, nil
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
