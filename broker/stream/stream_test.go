package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/market/markettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// tickerServer answers every subscription with frames(n) for the n-th connection
// and then hangs up if drop is set.
func tickerServer(t *testing.T, drop bool, frames func(n int32) []string) (string, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)

		_, sub, err := c.ReadMessage()
		if err != nil || !strings.Contains(string(sub), `"ticker"`) {
			return
		}
		for _, f := range frames(n) {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if drop {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &conns
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.ReconnectMin = time.Millisecond
	cfg.ReconnectMax = 5 * time.Millisecond
	return cfg
}

func TestStreamUpdatesStore(t *testing.T) {
	t.Parallel()

	url, _ := tickerServer(t, false, func(int32) []string {
		return []string{
			`{"type":"ticker","code":"KRW-BTC","trade_price":50000000,"trade_timestamp":1704067200000}`,
			`not json`,
			`{"type":"trade","code":"KRW-BTC","trade_price":1}`,
			`{"type":"ticker","code":"KRW-ETH","trade_price":3000000,"trade_timestamp":1704067201000}`,
		}
	})

	store := market.NewPriceStore()
	s := New(testConfig(url), store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, []string{"KRW-BTC", "KRW-ETH"}) }()

	require.Eventually(t, func() bool {
		_, err := store.Get("KRW-ETH")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	btc, err := store.Get("KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 50_000_000.0, btc.Price)
	assert.Equal(t, time.UnixMilli(1704067200000).UTC(), btc.Time)
	assert.True(t, s.Connected())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, s.Connected())
}

func TestStreamReconnects(t *testing.T) {
	t.Parallel()

	url, conns := tickerServer(t, true, func(n int32) []string {
		if n == 1 {
			return []string{`{"type":"ticker","code":"KRW-BTC","trade_price":100,"trade_timestamp":1704067200000}`}
		}
		return []string{`{"type":"ticker","code":"KRW-BTC","trade_price":101,"trade_timestamp":1704067260000}`}
	})

	store := market.NewPriceStore()
	s := New(testConfig(url), store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx, []string{"KRW-BTC"}) }()

	require.Eventually(t, func() bool {
		tk, err := store.Get("KRW-BTC")
		return err == nil && tk.Price == 101
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestStreamGivesUp(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	cfg := testConfig(url)
	cfg.MaxRetries = 2
	err := New(cfg, market.NewPriceStore(), nil).Run(context.Background(), []string{"KRW-BTC"})
	assert.ErrorContains(t, err, "giving up")

	assert.Error(t, New(cfg, market.NewPriceStore(), nil).Run(context.Background(), nil))
}

func TestSourcePrefersFreshTicks(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rest := markettest.NewSource()
	rest.Now = now
	rest.SetPrice("KRW-BTC", 200)

	store := market.NewPriceStore()
	src := NewSource(rest, store, 5*time.Second)
	src.now = func() time.Time { return now }

	store.Set(market.Tick{Instrument: "KRW-BTC", Price: 100, Time: now.Add(-2 * time.Second)})
	tk, err := src.GetPrice(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 100.0, tk.Price)

	now = now.Add(10 * time.Second)
	rest.Now = now
	tk, err = src.GetPrice(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 200.0, tk.Price)

	stored, err := store.Get("KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 200.0, stored.Price)

	_, err = src.GetPrice(context.Background(), "KRW-ETH")
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}
