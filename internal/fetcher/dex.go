package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"launch-alerts/internal/resilience"
)

// DexOptions parameterise the DexScreener fetcher.
type DexOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Service   string
}

// Dex fetches pair data from DexScreener. Hex contract addresses are looked
// up by token; anything else goes through symbol search.
type Dex struct {
	opts    DexOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDex constructs a DEX fetcher.
func NewDex(opts DexOptions, logger zerolog.Logger) *Dex {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Service == "" {
		opts.Service = "dex_data"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	return &Dex{
		opts:    opts,
		logger:  logger.With().Str("component", "dex_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchDexData returns the most liquid pair for ticker, or nil when none exists.
func (d *Dex) FetchDexData(ctx context.Context, ticker string) (*DexData, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, resilience.Invalid("ticker", "empty")
	}

	var (
		endpoint string
		address  string
	)
	if strings.HasPrefix(strings.ToLower(ticker), "0x") {
		if !common.IsHexAddress(ticker) {
			return nil, resilience.Invalid("ticker", "malformed contract address %q", ticker)
		}
		address = common.HexToAddress(ticker).Hex()
		endpoint = d.baseURL + "/latest/dex/tokens/" + address
	} else {
		endpoint = d.baseURL + "/latest/dex/search?q=" + url.QueryEscape(strings.ToUpper(ticker))
	}

	var payload pairsResponse
	found, err := getJSON(ctx, d.client, d.opts.Service, endpoint, map[string]string{"User-Agent": d.userAgent()}, &payload)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	best := pickPair(payload.Pairs, ticker, address)
	if best == nil {
		d.logger.Debug().Str("ticker", ticker).Int("pairs", len(payload.Pairs)).Msg("no matching dex pair")
		return nil, nil
	}

	out := &DexData{
		Symbol:       strings.ToUpper(best.BaseToken.Symbol),
		TokenAddress: best.BaseToken.Address,
		PairAddress:  best.PairAddress,
		ChainID:      best.ChainID,
		DexID:        best.DexID,
		LiquidityUSD: best.Liquidity.USD,
		Volume24h:    best.Volume.H24,
		Change24hPct: best.PriceChange.H24,
		FDV:          best.FDV,
		Buys24h:      best.Txns.H24.Buys,
		Sells24h:     best.Txns.H24.Sells,
	}
	if best.PriceUSD != "" {
		price, err := decimal.NewFromString(best.PriceUSD)
		if err != nil {
			return nil, resilience.Invalid("priceUsd", "%v", err)
		}
		out.PriceUSD = price
	}
	if best.PairCreatedAt > 0 {
		out.PairCreated = time.UnixMilli(best.PairCreatedAt).UTC()
	}
	return out, nil
}

func (d *Dex) userAgent() string {
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		return ua
	}
	return "launchalerts/1.0"
}

// pickPair keeps pairs whose base token matches the query and returns the
// most liquid one.
func pickPair(pairs []pair, ticker, address string) *pair {
	var best *pair
	for i := range pairs {
		p := &pairs[i]
		if address != "" {
			if !strings.EqualFold(p.BaseToken.Address, address) {
				continue
			}
		} else if !strings.EqualFold(p.BaseToken.Symbol, ticker) {
			continue
		}
		if best == nil || p.Liquidity.USD.GreaterThan(best.Liquidity.USD) {
			best = p
		}
	}
	return best
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Txns     struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H24 decimal.Decimal `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 decimal.Decimal `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"liquidity"`
	FDV           decimal.Decimal `json:"fdv"`
	PairCreatedAt int64           `json:"pairCreatedAt"`
}

var _ DexDataFetcher = (*Dex)(nil)
