package runner

import (
	"errors"
	"time"
)

// Config holds the loop timings and order retry limits.
type Config struct {
	// ScanInterval is normally 20-30s and PollInterval 1-5s.
	ScanInterval time.Duration `yaml:"scan_interval" json:"scan_interval"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	// ExposureCapPct bounds the notional of all open positions as a percent of equity.
	ExposureCapPct float64 `yaml:"exposure_cap_pct" json:"exposure_cap_pct"`

	BuyAttempts int           `yaml:"buy_attempts" json:"buy_attempts"`
	BuyBackoff  time.Duration `yaml:"buy_backoff" json:"buy_backoff"`

	SellAttempts int           `yaml:"sell_attempts" json:"sell_attempts"`
	SellBackoff  time.Duration `yaml:"sell_backoff" json:"sell_backoff"`
	SellDeadline time.Duration `yaml:"sell_deadline" json:"sell_deadline"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		ScanInterval:    25 * time.Second,
		PollInterval:    2 * time.Second,
		ExposureCapPct:  100,
		BuyAttempts:     3,
		BuyBackoff:      time.Second,
		SellAttempts:    10,
		SellBackoff:     300 * time.Millisecond,
		SellDeadline:    30 * time.Second,
		ShutdownTimeout: 20 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ScanInterval <= 0:
		return errors.New("scan_interval must be positive")
	case c.PollInterval <= 0:
		return errors.New("poll_interval must be positive")
	case c.PollInterval >= c.ScanInterval:
		return errors.New("poll_interval must be shorter than scan_interval")
	case c.ExposureCapPct <= 0:
		return errors.New("exposure_cap_pct must be positive")
	case c.BuyAttempts <= 0:
		return errors.New("buy_attempts must be positive")
	case c.SellAttempts <= 0:
		return errors.New("sell_attempts must be positive")
	case c.SellDeadline <= 0:
		return errors.New("sell_deadline must be positive")
	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}
