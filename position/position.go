// Package position tracks an open trade and decides when it must close.
package position

import (
	"fmt"
	"time"

	"github.com/rustyeddy/gradebot/risk"
	"github.com/rustyeddy/gradebot/scoring"
)

type State int

const (
	StateOpen State = iota
	StateTrailing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateTrailing:
		return "TRAILING"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitStopLoss
	ExitTarget
	ExitTrailing
	ExitTimeLimit
	ExitShutdown
)

var exitNames = map[ExitReason]string{
	ExitNone:      "none",
	ExitStopLoss:  "stop_loss",
	ExitTarget:    "target",
	ExitTrailing:  "trailing_stop",
	ExitTimeLimit: "time_limit",
	ExitShutdown:  "shutdown",
}

func (r ExitReason) String() string {
	if n, ok := exitNames[r]; ok {
		return n
	}
	return fmt.Sprintf("ExitReason(%d)", int(r))
}

// GradeConfig is the exit profile frozen into a position at entry. Values are percent.
type GradeConfig struct {
	TargetProfitPct  float64 `yaml:"target_profit_pct" json:"target_profit_pct"`
	MinProfitPct     float64 `yaml:"min_profit_pct" json:"min_profit_pct"`
	TrailingStartPct float64 `yaml:"trailing_start_pct" json:"trailing_start_pct"`
	TrailingGapPct   float64 `yaml:"trailing_gap_pct" json:"trailing_gap_pct"`
	BaseStopLossPct  float64 `yaml:"base_stop_loss_pct" json:"base_stop_loss_pct"`
}

func (c GradeConfig) Validate() error {
	switch {
	case c.TargetProfitPct <= 0:
		return fmt.Errorf("target_profit_pct must be positive")
	case c.TrailingStartPct <= 0 || c.TrailingStartPct >= c.TargetProfitPct:
		return fmt.Errorf("trailing_start_pct must be positive and below target_profit_pct")
	case c.TrailingGapPct <= 0:
		return fmt.Errorf("trailing_gap_pct must be positive")
	case c.BaseStopLossPct >= 0:
		return fmt.Errorf("base_stop_loss_pct must be negative")
	case c.MinProfitPct >= c.TrailingStartPct:
		return fmt.Errorf("min_profit_pct must be below trailing_start_pct")
	}
	return nil
}

type GradeConfigs struct {
	Gold   GradeConfig `yaml:"gold" json:"gold"`
	Silver GradeConfig `yaml:"silver" json:"silver"`
	Bronze GradeConfig `yaml:"bronze" json:"bronze"`
}

func DefaultGradeConfigs() GradeConfigs {
	return GradeConfigs{
		Gold:   GradeConfig{TargetProfitPct: 2.0, MinProfitPct: 0.3, TrailingStartPct: 1.0, TrailingGapPct: 0.4, BaseStopLossPct: -1.0},
		Silver: GradeConfig{TargetProfitPct: 1.2, MinProfitPct: 0.2, TrailingStartPct: 0.6, TrailingGapPct: 0.3, BaseStopLossPct: -0.7},
		Bronze: GradeConfig{TargetProfitPct: 0.8, MinProfitPct: 0.15, TrailingStartPct: 0.4, TrailingGapPct: 0.2, BaseStopLossPct: -0.5},
	}
}

// For returns the profile for g. NONE has no profile.
func (c GradeConfigs) For(g scoring.Grade) (GradeConfig, bool) {
	switch g {
	case scoring.GradeGold:
		return c.Gold, true
	case scoring.GradeSilver:
		return c.Silver, true
	case scoring.GradeBronze:
		return c.Bronze, true
	}
	return GradeConfig{}, false
}

// Position is one open long trade. Quantity and Config never change after open.
type Position struct {
	ID         string
	Instrument string
	EntryPrice float64
	Quantity   float64
	Notional   float64
	EntryFee   float64
	Grade      scoring.Grade
	Config     GradeConfig
	OpenedAt   time.Time

	// VolatilityPct is the Bollinger width at entry and drives the dynamic stop.
	VolatilityPct float64

	State             State
	PeakProfitPct     float64
	MaxFavorablePrice float64
	LastTick          time.Time

	ExitPrice  float64
	ExitReason ExitReason
	ClosedAt   time.Time
}

// ProfitPct is the unrealized percent gain at price.
func (p Position) ProfitPct(price float64) float64 {
	return risk.PnLPct(p.EntryPrice, price)
}

// PnL is the unrealized gain in quote currency at price, before fees.
func (p Position) PnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity
}

func (p Position) Closed() bool { return p.State == StateClosed }
