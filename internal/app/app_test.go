package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rustyeddy/gradebot/broker/paper"
	"github.com/rustyeddy/gradebot/config"
	"github.com/rustyeddy/gradebot/journal"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Universe = []string{"KRW-BTC"}
	cfg.Exchange.BaseURL = url
	cfg.Exchange.DataAttempts = 1
	cfg.Snapshot.Attempts = 1
	cfg.Ledger.Path = filepath.Join(dir, "state", "ledger.json")
	cfg.Journal.DBPath = filepath.Join(dir, "journal", "trades.db")
	cfg.Metrics.Addr = "127.0.0.1:0"
	return cfg
}

func TestModuleGraphIsComplete(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	require.NoError(t, fx.ValidateApp(Module(cfg, zap.NewNop())))

	cfg.Mode = config.ModeLive
	cfg.Stream.URL = "ws://127.0.0.1:1/ws"
	cfg.Metrics.Addr = ""
	require.NoError(t, fx.ValidateApp(Module(cfg, zap.NewNop())))
}

func TestAppStartsAndStops(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	core, logs := observer.New(zapcore.InfoLevel)

	app := fxtest.New(t, Module(cfg, zap.New(core)))
	app.RequireStart()
	app.RequireStop()

	_, err := os.Stat(cfg.Ledger.Path)
	assert.NoError(t, err, "ledger is written on first start")
	_, err = os.Stat(cfg.Journal.DBPath)
	assert.NoError(t, err)
	assert.NotEmpty(t, logs.FilterMessage("ledger reinitialized").All())
}

func TestOpenJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.JournalConfig
		wantErr bool
	}{
		{"sqlite", config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "db", "j.db")}, false},
		{"csv", config.JournalConfig{
			Type:       "csv",
			TradesFile: filepath.Join(dir, "csv", "trades.csv"),
			EquityFile: filepath.Join(dir, "csv", "equity.csv"),
		}, false},
		{"unknown", config.JournalConfig{Type: "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := OpenJournal(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalid)
				assert.Nil(t, j)
				return
			}
			require.NoError(t, err)
			assert.Implements(t, (*journal.Journal)(nil), j)
			assert.NoError(t, j.Close())
		})
	}
}

func TestNewExchangeByMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"market":"KRW-BTC","trade_price":"50000000","timestamp":1704067200000}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	c := newRESTClient(cfg, nil, zap.NewNop())
	m := metrics.New()

	ex := newExchange(cfg, c, market.NewPriceStore(), m)
	require.IsType(t, &paper.Exchange{}, ex)

	_, err := ex.BuyMarket(context.Background(), "KRW-BTC", 100_000)
	require.NoError(t, err)
	n, err := testutil.GatherAndCount(m.Gatherer(), "gradebot_paper_fills_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cfg.Mode = config.ModeLive
	ex = newExchange(cfg, c, market.NewPriceStore(), m)
	assert.IsType(t, exchange{}, ex)
}
