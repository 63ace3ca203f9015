// Package config loads the bot configuration from YAML (or JSON) and secrets
// from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/gradebot/broker/paper"
	"github.com/rustyeddy/gradebot/broker/rest"
	"github.com/rustyeddy/gradebot/broker/stream"
	"github.com/rustyeddy/gradebot/notify"
	"github.com/rustyeddy/gradebot/position"
	"github.com/rustyeddy/gradebot/ratelimit"
	"github.com/rustyeddy/gradebot/risk"
	"github.com/rustyeddy/gradebot/runner"
	"github.com/rustyeddy/gradebot/scanner"
	"github.com/rustyeddy/gradebot/scoring"
	"github.com/rustyeddy/gradebot/snapshot"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// Config represents the complete bot configuration
type Config struct {
	Mode     string   `json:"mode" yaml:"mode"`
	Universe []string `json:"universe" yaml:"universe"`

	Snapshot snapshot.BuilderConfig `json:"snapshot" yaml:"snapshot"`
	Scoring  scoring.Weights        `json:"scoring" yaml:"scoring"`
	Scanner  scanner.Config         `json:"scanner" yaml:"scanner"`
	Grades   position.GradeConfigs  `json:"grades" yaml:"grades"`
	Exit     position.ExitPolicy    `json:"exit" yaml:"exit"`
	Sizing   risk.SizingPolicy      `json:"sizing" yaml:"sizing"`
	Risk     risk.Policy            `json:"risk" yaml:"risk"`
	Runner   runner.Config          `json:"runner" yaml:"runner"`

	Ledger    LedgerConfig     `json:"ledger" yaml:"ledger"`
	RateLimit ratelimit.Config `json:"ratelimit" yaml:"ratelimit"`
	Exchange  rest.Config      `json:"exchange" yaml:"exchange"`
	Stream    stream.Config    `json:"stream" yaml:"stream"`
	Paper     paper.Config     `json:"paper" yaml:"paper"`
	Journal   JournalConfig    `json:"journal" yaml:"journal"`
	Notify    NotifyConfig     `json:"notify" yaml:"notify"`
	Metrics   MetricsConfig    `json:"metrics" yaml:"metrics"`
	Log       LogConfig        `json:"log" yaml:"log"`
}

type LedgerConfig struct {
	Path string `json:"path" yaml:"path"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "sqlite", "csv" or "postgres"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	// DSN comes from GRADEBOT_PG_DSN.
	DSN string `json:"-" yaml:"-"`
}

type NotifyConfig struct {
	Telegram  notify.TelegramConfig `json:"telegram" yaml:"telegram"`
	QueueSize int                   `json:"queue_size" yaml:"queue_size"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"` // empty disables the server
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Dev   bool   `json:"dev" yaml:"dev"`
}

// LoadFromFile loads configuration on top of Default (YAML first, JSON fallback)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModePaper {
		return invalid("mode must be 'live' or 'paper'")
	}
	if len(c.Universe) == 0 {
		return invalid("universe is required")
	}
	if len(c.Scanner.Timeframes) == 0 {
		return invalid("scanner.timeframes is required")
	}
	for _, tf := range c.Scanner.Timeframes {
		if !tf.Valid() {
			return invalid("unknown timeframe %q", tf)
		}
	}
	if !c.Scanner.GuardTimeframe.Valid() {
		return invalid("unknown guard timeframe %q", c.Scanner.GuardTimeframe)
	}
	if c.Scanner.Cooldown < 0 {
		return invalid("scanner.cooldown must not be negative")
	}
	for name, g := range map[string]position.GradeConfig{"gold": c.Grades.Gold, "silver": c.Grades.Silver, "bronze": c.Grades.Bronze} {
		if err := g.Validate(); err != nil {
			return invalid("grades.%s: %v", name, err)
		}
	}
	if c.Exit.MaxHold <= 0 {
		return invalid("exit.max_hold must be positive")
	}
	if c.Exit.StopFloorPct >= 0 {
		return invalid("exit.stop_floor_pct must be negative")
	}
	if c.Sizing.BaseFraction <= 0 || c.Sizing.BaseFraction > 1 {
		return invalid("sizing.base_fraction must be between 0 and 1")
	}
	if c.Sizing.KellyMin <= 0 || c.Sizing.KellyMax < c.Sizing.KellyMin {
		return invalid("sizing.kelly_min must be positive and not above kelly_max")
	}
	if c.Sizing.MinOrderNotional <= 0 {
		return invalid("sizing.min_order_notional must be positive")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		return invalid("risk.max_consecutive_losses must be positive")
	}
	if c.Risk.DrawdownFloor <= 0 || c.Risk.DrawdownFloor >= 1 {
		return invalid("risk.drawdown_floor must be between 0 and 1")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return invalid("risk.max_open_positions must be positive")
	}
	if err := c.Runner.Validate(); err != nil {
		return invalid("runner: %v", err)
	}
	if c.Ledger.Path == "" {
		return invalid("ledger.path is required")
	}
	if c.Exchange.BaseURL == "" {
		return invalid("exchange.base_url is required")
	}
	if c.Mode == ModePaper && c.Paper.Balance <= 0 {
		return invalid("paper.balance must be positive")
	}
	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return invalid("journal db_path required for SQLite type")
		}
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return invalid("journal trades_file and equity_file required for CSV type")
		}
	case "postgres":
	default:
		return invalid("journal.type must be 'sqlite', 'csv' or 'postgres'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	exchange := rest.DefaultConfig()
	exchange.BaseURL = "http://127.0.0.1:8080" // exchange REST gateway

	return &Config{
		Mode:      ModePaper,
		Universe:  []string{"KRW-BTC", "KRW-ETH", "KRW-XRP", "KRW-SOL"},
		Snapshot:  snapshot.DefaultBuilderConfig(),
		Scoring:   scoring.DefaultWeights(),
		Scanner:   scanner.DefaultConfig(),
		Grades:    position.DefaultGradeConfigs(),
		Exit:      position.DefaultExitPolicy(),
		Sizing:    risk.DefaultSizingPolicy(),
		Risk:      risk.DefaultPolicy(),
		Runner:    runner.DefaultConfig(),
		Ledger:    LedgerConfig{Path: "./data/ledger.json"},
		RateLimit: ratelimit.DefaultConfig(),
		Exchange:  exchange,
		Stream:    stream.DefaultConfig(),
		Paper:     paper.DefaultConfig(),
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./data/journal.db",
		},
		Notify:  NotifyConfig{QueueSize: 64},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info"},
	}
}

// Environment variables holding secrets.
const (
	EnvAPIKey         = "GRADEBOT_API_KEY"
	EnvAPISecret      = "GRADEBOT_API_SECRET"
	EnvTelegramToken  = "GRADEBOT_TELEGRAM_TOKEN"
	EnvTelegramChatID = "GRADEBOT_TELEGRAM_CHAT_ID"
	EnvPostgresDSN    = "GRADEBOT_PG_DSN"
)

// LoadEnv reads path into the process environment when it exists. Variables
// already set win over the file.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv copies secrets from the environment into c.
func (c *Config) ApplyEnv() error {
	c.Exchange.APIKey = os.Getenv(EnvAPIKey)
	c.Exchange.APISecret = os.Getenv(EnvAPISecret)
	c.Notify.Telegram.Token = os.Getenv(EnvTelegramToken)
	c.Journal.DSN = os.Getenv(EnvPostgresDSN)

	if v := os.Getenv(EnvTelegramChatID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return invalid("%s must be an integer", EnvTelegramChatID)
		}
		c.Notify.Telegram.ChatID = id
	}

	if c.Mode == ModeLive && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return invalid("%s and %s are required in live mode", EnvAPIKey, EnvAPISecret)
	}
	if c.Journal.Type == "postgres" && c.Journal.DSN == "" {
		return invalid("%s is required for the postgres journal", EnvPostgresDSN)
	}
	return nil
}
