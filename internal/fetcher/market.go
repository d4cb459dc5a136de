package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"launch-alerts/internal/resilience"
)

// coinIDs maps common tickers to CoinGecko ids; other tickers are lowercased.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"MATIC": "polygon",
	"DOT":   "polkadot",
	"SHIB":  "shiba-inu",
	"PEPE":  "pepe",
	"FLOKI": "floki",
	"BONK":  "bonk",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
}

// MarketOptions parameterise the CoinGecko fetcher.
type MarketOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	Service   string
}

// Market fetches coin data from CoinGecko.
type Market struct {
	opts    MarketOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMarket constructs a market fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Service == "" {
		opts.Service = "market_data"
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &Market{
		opts:    opts,
		logger:  logger.With().Str("component", "market_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// CoinID resolves the CoinGecko id for a ticker.
func CoinID(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if id, ok := coinIDs[ticker]; ok {
		return id
	}
	return strings.ToLower(ticker)
}

// FetchMarketData retrieves price, market and community metrics for ticker.
func (m *Market) FetchMarketData(ctx context.Context, ticker string) (*MarketData, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, resilience.Invalid("ticker", "empty")
	}

	id := CoinID(ticker)
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("community_data", "true")
	params.Set("developer_data", "true")
	params.Set("sparkline", "false")
	endpoint := m.baseURL + "/coins/" + url.PathEscape(id) + "?" + params.Encode()

	var payload coinResponse
	found, err := getJSON(ctx, m.client, m.opts.Service, endpoint, m.headers(), &payload)
	if err != nil {
		return nil, err
	}
	if !found {
		m.logger.Debug().Str("ticker", ticker).Str("coin_id", id).Msg("coin not listed")
		return nil, nil
	}

	md := payload.MarketData
	return &MarketData{
		Symbol:            ticker,
		Name:              payload.Name,
		ID:                id,
		Price:             md.CurrentPrice["usd"],
		Change24hPct:      md.Change24h,
		Change7dPct:       md.Change7d,
		Change30dPct:      md.Change30d,
		MarketCap:         md.MarketCap["usd"],
		Volume24h:         md.TotalVolume["usd"],
		High24h:           md.High24h["usd"],
		Low24h:            md.Low24h["usd"],
		ATH:               md.ATH["usd"],
		ATHChangePct:      md.ATHChange["usd"],
		CirculatingSupply: md.Circulating,
		TotalSupply:       md.TotalSupply,
		CommunityScore:    payload.CommunityScore,
		DeveloperScore:    payload.DeveloperScore,
		LiquidityScore:    payload.LiquidityScore,
		TwitterFollowers:  payload.Community.TwitterFollowers,
	}, nil
}

func (m *Market) headers() map[string]string {
	ua := m.opts.UserAgent
	if strings.TrimSpace(ua) == "" {
		ua = "launchalerts/1.0"
	}
	return map[string]string{
		"User-Agent":        ua,
		"x-cg-demo-api-key": m.opts.APIKey,
	}
}

type usdMap map[string]decimal.Decimal

type coinResponse struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	CommunityScore decimal.Decimal `json:"community_score"`
	DeveloperScore decimal.Decimal `json:"developer_score"`
	LiquidityScore decimal.Decimal `json:"liquidity_score"`
	Community      struct {
		TwitterFollowers int64 `json:"twitter_followers"`
	} `json:"community_data"`
	MarketData struct {
		CurrentPrice usdMap          `json:"current_price"`
		MarketCap    usdMap          `json:"market_cap"`
		TotalVolume  usdMap          `json:"total_volume"`
		High24h      usdMap          `json:"high_24h"`
		Low24h       usdMap          `json:"low_24h"`
		ATH          usdMap          `json:"ath"`
		ATHChange    usdMap          `json:"ath_change_percentage"`
		Change24h    decimal.Decimal `json:"price_change_percentage_24h"`
		Change7d     decimal.Decimal `json:"price_change_percentage_7d"`
		Change30d    decimal.Decimal `json:"price_change_percentage_30d"`
		Circulating  decimal.Decimal `json:"circulating_supply"`
		TotalSupply  decimal.Decimal `json:"total_supply"`
	} `json:"market_data"`
}

var _ MarketDataFetcher = (*Market)(nil)
