package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/gradebot/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, 25*time.Second, cfg.Runner.ScanInterval)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"unknown mode", func(c *Config) { c.Mode = "demo" }, "mode must be 'live' or 'paper'"},
		{"empty universe", func(c *Config) { c.Universe = nil }, "universe is required"},
		{"no timeframes", func(c *Config) { c.Scanner.Timeframes = nil }, "scanner.timeframes is required"},
		{"bad timeframe", func(c *Config) { c.Scanner.Timeframes = []market.Timeframe{"7m"} }, "unknown timeframe"},
		{"bad guard timeframe", func(c *Config) { c.Scanner.GuardTimeframe = "" }, "unknown guard timeframe"},
		{"negative cooldown", func(c *Config) { c.Scanner.Cooldown = -time.Minute }, "scanner.cooldown must not be negative"},
		{"zero hold", func(c *Config) { c.Exit.MaxHold = 0 }, "exit.max_hold must be positive"},
		{"positive stop floor", func(c *Config) { c.Exit.StopFloorPct = 0.5 }, "exit.stop_floor_pct must be negative"},
		{"fraction above one", func(c *Config) { c.Sizing.BaseFraction = 1.5 }, "sizing.base_fraction"},
		{"kelly inverted", func(c *Config) { c.Sizing.KellyMax = c.Sizing.KellyMin / 2 }, "sizing.kelly_min"},
		{"zero minimum order", func(c *Config) { c.Sizing.MinOrderNotional = 0 }, "sizing.min_order_notional"},
		{"zero losses", func(c *Config) { c.Risk.MaxConsecutiveLosses = 0 }, "risk.max_consecutive_losses"},
		{"floor of one", func(c *Config) { c.Risk.DrawdownFloor = 1 }, "risk.drawdown_floor"},
		{"zero positions", func(c *Config) { c.Risk.MaxOpenPositions = 0 }, "risk.max_open_positions"},
		{"poll slower than scan", func(c *Config) { c.Runner.PollInterval = time.Hour }, "runner:"},
		{"no ledger path", func(c *Config) { c.Ledger.Path = "" }, "ledger.path is required"},
		{"no base url", func(c *Config) { c.Exchange.BaseURL = "" }, "exchange.base_url is required"},
		{"empty paper wallet", func(c *Config) { c.Paper.Balance = 0 }, "paper.balance must be positive"},
		{"sqlite without path", func(c *Config) { c.Journal.DBPath = "" }, "journal db_path required"},
		{
			name:   "csv without files",
			modify: func(c *Config) { c.Journal = JournalConfig{Type: "csv", TradesFile: "trades.csv"} },
			errMsg: "journal trades_file and equity_file required",
		},
		{"unknown journal", func(c *Config) { c.Journal.Type = "mongo" }, "journal.type must be"},
		{"postgres journal", func(c *Config) { c.Journal.Type = "postgres" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Universe = []string{"KRW-ADA"}
			cfg.Runner.ScanInterval = 40 * time.Second
			cfg.Risk.MaxOpenPositions = 3
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Universe, loaded.Universe)
			assert.Equal(t, cfg.Runner, loaded.Runner)
			assert.Equal(t, cfg.Risk, loaded.Risk)
			assert.Equal(t, cfg.Scoring, loaded.Scoring)
			assert.Equal(t, cfg.Grades, loaded.Grades)
		})
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gradebot.yaml")
	data := []byte(`
mode: paper
universe: [KRW-BTC, KRW-DOGE]
runner:
  scan_interval: 1m
journal:
  type: csv
  trades_file: ./data/trades.csv
  equity_file: ./data/equity.csv
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"KRW-BTC", "KRW-DOGE"}, cfg.Universe)
	assert.Equal(t, time.Minute, cfg.Runner.ScanInterval)
	assert.Equal(t, Default().Runner.PollInterval, cfg.Runner.PollInterval)
	assert.Equal(t, "csv", cfg.Journal.Type)
	assert.Equal(t, Default().Risk, cfg.Risk)
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: [oops"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "parse config")

	path = filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: demo\n"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvAPISecret, "secret")
	t.Setenv(EnvTelegramToken, "123:abc")
	t.Setenv(EnvTelegramChatID, "-10042")
	t.Setenv(EnvPostgresDSN, "postgres://bot@localhost/gradebot")

	cfg := Default()
	cfg.Mode = ModeLive
	cfg.Journal.Type = "postgres"
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "key", cfg.Exchange.APIKey)
	assert.Equal(t, "secret", cfg.Exchange.APISecret)
	assert.Equal(t, "123:abc", cfg.Notify.Telegram.Token)
	assert.Equal(t, int64(-10042), cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "postgres://bot@localhost/gradebot", cfg.Journal.DSN)
}

func TestApplyEnvRequiresSecrets(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "")
	t.Setenv(EnvTelegramChatID, "")
	t.Setenv(EnvPostgresDSN, "")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(), "paper mode runs without keys")

	cfg.Mode = ModeLive
	assert.ErrorIs(t, cfg.ApplyEnv(), ErrInvalid)

	cfg = Default()
	cfg.Journal.Type = "postgres"
	assert.ErrorContains(t, cfg.ApplyEnv(), EnvPostgresDSN)

	t.Setenv(EnvTelegramChatID, "not-a-number")
	assert.ErrorContains(t, Default().ApplyEnv(), EnvTelegramChatID)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEnv(""))
	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GRADEBOT_API_KEY=from-file\nGRADEBOT_API_SECRET=file-secret\n"), 0o600))
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvAPISecret, "")
	require.NoError(t, os.Unsetenv(EnvAPISecret))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-env", os.Getenv(EnvAPIKey))
	assert.Equal(t, "file-secret", os.Getenv(EnvAPISecret))
}
