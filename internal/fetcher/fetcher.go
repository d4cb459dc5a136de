package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketData is the CoinGecko view of one asset.
type MarketData struct {
	Symbol            string
	Name              string
	ID                string
	Price             decimal.Decimal
	Change24hPct      decimal.Decimal
	Change7dPct       decimal.Decimal
	Change30dPct      decimal.Decimal
	MarketCap         decimal.Decimal
	Volume24h         decimal.Decimal
	High24h           decimal.Decimal
	Low24h            decimal.Decimal
	ATH               decimal.Decimal
	ATHChangePct      decimal.Decimal
	CirculatingSupply decimal.Decimal
	TotalSupply       decimal.Decimal
	CommunityScore    decimal.Decimal
	DeveloperScore    decimal.Decimal
	LiquidityScore    decimal.Decimal
	TwitterFollowers  int64
}

// DexData is the most liquid DEX pair for one token.
type DexData struct {
	Symbol       string
	TokenAddress string
	PairAddress  string
	ChainID      string
	DexID        string
	PriceUSD     decimal.Decimal
	LiquidityUSD decimal.Decimal
	Volume24h    decimal.Decimal
	Change24hPct decimal.Decimal
	FDV          decimal.Decimal
	Buys24h      int64
	Sells24h     int64
	PairCreated  time.Time
}

// Event is an upcoming project event reported by an EventSource.
type Event struct {
	Asset       string
	Type        string
	Date        time.Time
	Description string
	Source      string
}

// MarketDataFetcher retrieves market data; a nil result means the asset is unknown.
type MarketDataFetcher interface {
	FetchMarketData(ctx context.Context, ticker string) (*MarketData, error)
}

// DexDataFetcher retrieves DEX pair data; a nil result means no pair was found.
type DexDataFetcher interface {
	FetchDexData(ctx context.Context, ticker string) (*DexData, error)
}

// EventSource lists upcoming events for a ticker.
type EventSource interface {
	UpcomingEvents(ctx context.Context, ticker string) ([]Event, error)
}
