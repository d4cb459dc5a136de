package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"launch-alerts/internal/resilience"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func TestMarketFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("tickers") != "false" {
			t.Errorf("tickers param missing")
		}
		if r.Header.Get("x-cg-demo-api-key") != "k" {
			t.Errorf("api key header missing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "bitcoin",
			"name": "Bitcoin",
			"community_score": 80.5,
			"liquidity_score": null,
			"community_data": {"twitter_followers": 1200},
			"market_data": {
				"current_price": {"usd": 64250.12},
				"market_cap": {"usd": 1260000000000},
				"total_volume": {"usd": 31000000000},
				"price_change_percentage_24h": -2.5
			}
		}`))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, noopLogger())
	data, err := m.FetchMarketData(context.Background(), "btc")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if data == nil {
		t.Fatal("expected market data")
	}
	if !data.Price.Equal(decimal.RequireFromString("64250.12")) {
		t.Fatalf("期望价格 64250.12, 实际 %s", data.Price)
	}
	if data.Symbol != "BTC" || data.Name != "Bitcoin" {
		t.Fatalf("unexpected identity %s/%s", data.Symbol, data.Name)
	}
	if !data.Change24hPct.Equal(decimal.NewFromFloat(-2.5)) {
		t.Fatalf("change = %s", data.Change24hPct)
	}
	if data.TwitterFollowers != 1200 {
		t.Fatalf("followers = %d", data.TwitterFollowers)
	}
}

func TestMarketFetchNotFoundReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{BaseURL: srv.URL}, noopLogger())
	data, err := m.FetchMarketData(context.Background(), "NOPE")
	if err != nil || data != nil {
		t.Fatalf("404 应返回 nil, nil; got %v, %v", data, err)
	}
}

func TestMarketFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		transient bool
		invalid   bool
	}{
		{name: "server error", status: http.StatusBadGateway, transient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`},
		{name: "garbage", status: http.StatusOK, body: `{"market_data": [`, invalid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			m := NewMarket(MarketOptions{BaseURL: srv.URL}, noopLogger())
			_, err := m.FetchMarketData(context.Background(), "ETH")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := resilience.IsTransient(err); got != tc.transient {
				t.Fatalf("transient = %v, want %v (%v)", got, tc.transient, err)
			}
			if got := resilience.IsValidation(err); got != tc.invalid {
				t.Fatalf("validation = %v, want %v (%v)", got, tc.invalid, err)
			}
		})
	}
}

func TestMarketFetchTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	m := NewMarket(MarketOptions{BaseURL: base, Timeout: time.Second}, noopLogger())
	_, err := m.FetchMarketData(context.Background(), "ETH")
	if !resilience.IsTransient(err) {
		t.Fatalf("connection refused should be transient, got %v", err)
	}
}

func TestDexSearchPicksMostLiquidMatchingPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/search" || r.URL.Query().Get("q") != "PEPE" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"pairs": [
			{"chainId":"ethereum","dexId":"uniswap","pairAddress":"0xa","baseToken":{"symbol":"PEPE","address":"0x1"},"priceUsd":"0.0000101","liquidity":{"usd":1000}},
			{"chainId":"ethereum","dexId":"uniswap","pairAddress":"0xb","baseToken":{"symbol":"PEPE","address":"0x1"},"priceUsd":"0.0000102","liquidity":{"usd":50000},"txns":{"h24":{"buys":12,"sells":7}},"pairCreatedAt":1700000000000},
			{"chainId":"bsc","dexId":"pancake","pairAddress":"0xc","baseToken":{"symbol":"PEPE2","address":"0x2"},"priceUsd":"1","liquidity":{"usd":900000}}
		]}`))
	}))
	defer srv.Close()

	d := NewDex(DexOptions{BaseURL: srv.URL}, noopLogger())
	data, err := d.FetchDexData(context.Background(), "pepe")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if data == nil || data.PairAddress != "0xb" {
		t.Fatalf("expected most liquid PEPE pair, got %+v", data)
	}
	if data.Buys24h != 12 || data.Sells24h != 7 {
		t.Fatalf("txns = %d/%d", data.Buys24h, data.Sells24h)
	}
	if !data.PriceUSD.Equal(decimal.RequireFromString("0.0000102")) {
		t.Fatalf("price = %s", data.PriceUSD)
	}
	if data.PairCreated.IsZero() {
		t.Fatal("pair creation time missing")
	}
}

func TestDexAddressLookupUsesChecksum(t *testing.T) {
	const lower = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
	const checksummed = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/latest/dex/tokens/"+checksummed) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"pairs":[{"pairAddress":"0xp","baseToken":{"symbol":"PEPE","address":"` + lower + `"},"priceUsd":"0.00001","liquidity":{"usd":10}}]}`))
	}))
	defer srv.Close()

	d := NewDex(DexOptions{BaseURL: srv.URL}, noopLogger())
	data, err := d.FetchDexData(context.Background(), lower)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if data == nil || data.PairAddress != "0xp" {
		t.Fatalf("unexpected data %+v", data)
	}

	if _, err := d.FetchDexData(context.Background(), "0x1234"); !resilience.IsValidation(err) {
		t.Fatalf("short address should be a validation error, got %v", err)
	}
}

func TestDexNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": null}`))
	}))
	defer srv.Close()

	d := NewDex(DexOptions{BaseURL: srv.URL}, noopLogger())
	data, err := d.FetchDexData(context.Background(), "WIF")
	if err != nil || data != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", data, err)
	}
}

func TestCalendarUpcomingEvents(t *testing.T) {
	now := time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)
	c := NewCalendar([]Event{
		{Asset: "arb", Type: "token_unlock", Date: now.AddDate(0, 0, 5)},
		{Asset: "ARB", Type: "listing", Date: now.AddDate(0, 0, -1)},
		{Asset: "ARB", Date: now.Add(-time.Hour)},
		{Asset: "OP", Type: "upgrade", Date: now.AddDate(0, 0, 2)},
	})
	c.now = func() time.Time { return now }

	events, err := c.UpcomingEvents(context.Background(), "Arb")
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected today's and future events, got %+v", events)
	}
	if events[0].Type != "launch" || events[1].Type != "token_unlock" {
		t.Fatalf("unexpected order/types: %+v", events)
	}
	if events[0].Source != "calendar" {
		t.Fatalf("source = %q", events[0].Source)
	}
}
