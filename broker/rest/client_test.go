package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/gradebot/broker"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "key"
	cfg.APISecret = "secret"
	cfg.DataAttempts = 3
	cfg.DataBackoff = time.Millisecond
	cfg.OrderPollWait = time.Millisecond
	return New(cfg, ratelimit.New(ratelimit.Config{PerSecond: 1000}), nil)
}

func TestGetBars(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/candles", r.URL.Path)
		assert.Equal(t, "KRW-BTC", r.URL.Query().Get("market"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		// newest first, prices as strings
		_, _ = w.Write([]byte(`[
			{"time": 1704067500000, "open": "101", "high": "103", "low": "100", "close": "102.5", "volume": "3.25"},
			{"time": 1704067200000, "open": "100", "high": "101", "low": "99", "close": "101", "volume": 2}
		]`))
	}))

	bars, err := c.GetBars(context.Background(), "KRW-BTC", market.M5, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 102.5, bars[1].Close)
	assert.Equal(t, 3.25, bars[1].Volume)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
}

func TestGetBarsRetriesThenUnavailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.GetBars(context.Background(), "KRW-BTC", market.M5, 10)
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetPriceRecoversFromRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"name":"too_many_requests","message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"market":"KRW-BTC","trade_price":"50000000","timestamp":1704067200000}`))
	}))

	tick, err := c.GetPrice(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 50_000_000.0, tick.Price)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAccount(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		ts := r.Header.Get("X-API-TIMESTAMP")
		assert.NotEmpty(t, ts)
		assert.Equal(t, c2sign("secret", ts, http.MethodGet, "/v1/accounts", nil), r.Header.Get("X-API-SIGN"))
		_, _ = w.Write([]byte(`[
			{"currency":"KRW","balance":"900000","locked":"100000","avg_buy_price":"0"},
			{"currency":"BTC","balance":"0.01","locked":"0","avg_buy_price":"50000000"}
		]`))
	}))

	acct, err := c.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "KRW", acct.Currency)
	assert.Equal(t, 900_000.0, acct.Free)
	assert.Equal(t, 1_500_000.0, acct.Equity)
}

func c2sign(secret, ts, method, path string, body []byte) string {
	c := &Client{cfg: Config{APISecret: secret}}
	return c.sign(ts, method, path, body)
}

func TestBuyMarketPollsUntilDone(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
			var req orderRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "bid", req.Side)
			assert.Equal(t, "price", req.OrdType)
			assert.Equal(t, "100000", req.Price)
			assert.NotEmpty(t, req.Identifier)
			_, _ = w.Write([]byte(`{"uuid":"o-1","state":"wait","market":"KRW-BTC","executed_volume":"0"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/order":
			assert.Equal(t, "o-1", r.URL.Query().Get("uuid"))
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"uuid":"o-1","state":"wait","executed_volume":"0"}`))
				return
			}
			_, _ = w.Write([]byte(`{"uuid":"o-1","state":"done","executed_volume":"0.002","executed_funds":"99950","paid_fee":"50","created_at":"2024-01-01T00:00:00Z"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))

	fill, err := c.BuyMarket(context.Background(), "KRW-BTC", 100_000.7)
	require.NoError(t, err)
	assert.Equal(t, "o-1", fill.OrderID)
	assert.Equal(t, broker.Buy, fill.Side)
	assert.Equal(t, 0.002, fill.Quantity)
	assert.InDelta(t, 49_975_000.0, fill.Price, 1e-6)
	assert.Equal(t, 50.0, fill.Fee)
	assert.NotEmpty(t, fill.ClientOrderID)
}

func TestSellMarketRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ask", req.Side)
		assert.Equal(t, "0.12345678", req.Volume)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"name":"insufficient_funds_ask","message":"not enough"}}`))
	}))

	_, err := c.SellMarket(context.Background(), "KRW-BTC", 0.123456789)
	assert.ErrorIs(t, err, broker.ErrOrderRejected)
	assert.Contains(t, err.Error(), "insufficient_funds_ask")
}

func TestOrderRateLimited(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.SellMarket(context.Background(), "KRW-BTC", 1)
	assert.ErrorIs(t, err, broker.ErrRateLimited)
	assert.NotErrorIs(t, err, broker.ErrOrderRejected)
}

func TestPrivateCallsNeedCredentials(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	_, err := c.Account(context.Background())
	assert.Error(t, err)

	_, err = c.BuyMarket(context.Background(), "KRW-BTC", 0)
	assert.ErrorIs(t, err, broker.ErrOrderRejected)
}
