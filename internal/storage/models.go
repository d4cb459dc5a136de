package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// WatchItem is one entry of a user's watchlist.
type WatchItem struct {
	Ticker string
	IsMeme bool
}

// LaunchEvent is an upcoming token event (listing, unlock, mainnet, ...).
type LaunchEvent struct {
	ID          int64
	Asset       string
	EventType   string
	EventDate   time.Time
	Description string
	Source      string
	Notified    bool
	RiskScore   decimal.NullDecimal
	RiskLevel   string
	Confidence  decimal.NullDecimal
	Summary     string
	Suggestion  string
	CreatedAt   time.Time
}

// EventAnalysis is the risk assessment persisted on an event before it is sent.
type EventAnalysis struct {
	RiskScore  decimal.Decimal
	RiskLevel  string
	Confidence decimal.Decimal
	Summary    string
	Suggestion string
}

// Position is a user's holding of one asset.
type Position struct {
	UserID       int64
	Asset        string
	AssetType    string
	Quantity     decimal.Decimal
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	ProfitLoss   decimal.Decimal
	ProfitLossPct decimal.Decimal
	UpdatedAt    time.Time
}

// Alert types written to the alert log.
const (
	AlertHighScore   = "high_score"
	AlertLaunchEvent = "launch_event"
	AlertPriceDrop   = "price_drop"
	AlertWeekly      = "weekly_report"
)

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID        int64
	UserID    int64
	Ticker    string
	AlertType string
	Message   string
	CreatedAt time.Time
}
