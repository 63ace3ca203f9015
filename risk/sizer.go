package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/gradebot/scoring"
)

// ErrBelowMinimum is returned when the bounded notional is smaller than the
// minimum order size. Sizing never rounds up.
var ErrBelowMinimum = errors.New("order size below minimum")

type GradeMultipliers struct {
	Gold   float64 `yaml:"gold" json:"gold"`
	Silver float64 `yaml:"silver" json:"silver"`
	Bronze float64 `yaml:"bronze" json:"bronze"`
}

func (m GradeMultipliers) For(g scoring.Grade) float64 {
	switch g {
	case scoring.GradeGold:
		return m.Gold
	case scoring.GradeSilver:
		return m.Silver
	case scoring.GradeBronze:
		return m.Bronze
	}
	return 0
}

// Tier caps a single trade at Fraction of equity while equity is at most UpTo.
// The last tier should have UpTo 0, meaning unbounded.
type Tier struct {
	UpTo     float64 `yaml:"up_to" json:"up_to"`
	Fraction float64 `yaml:"fraction" json:"fraction"`
}

type SizingPolicy struct {
	BaseFraction float64          `yaml:"base_fraction" json:"base_fraction"`
	Multipliers  GradeMultipliers `yaml:"multipliers" json:"multipliers"`

	MinTradesForKelly int     `yaml:"min_trades_for_kelly" json:"min_trades_for_kelly"`
	KellyBaseline     float64 `yaml:"kelly_baseline" json:"kelly_baseline"`
	KellyMin          float64 `yaml:"kelly_min" json:"kelly_min"`
	KellyMax          float64 `yaml:"kelly_max" json:"kelly_max"`

	FeeBufferPct     float64 `yaml:"fee_buffer_pct" json:"fee_buffer_pct"`
	Tiers            []Tier  `yaml:"tiers" json:"tiers"`
	MinOrderNotional float64 `yaml:"min_order_notional" json:"min_order_notional"`
	NotionalStep     float64 `yaml:"notional_step" json:"notional_step"`
}

func DefaultSizingPolicy() SizingPolicy {
	return SizingPolicy{
		BaseFraction:      0.2,
		Multipliers:       GradeMultipliers{Gold: 1.5, Silver: 1.0, Bronze: 0.6},
		MinTradesForKelly: 10,
		KellyBaseline:     0.25,
		KellyMin:          0.5,
		KellyMax:          2.0,
		FeeBufferPct:      0.5,
		Tiers: []Tier{
			{UpTo: 1_000_000, Fraction: 0.5},
			{UpTo: 5_000_000, Fraction: 0.3},
			{UpTo: 20_000_000, Fraction: 0.2},
			{UpTo: 0, Fraction: 0.1},
		},
		MinOrderNotional: 5000,
		NotionalStep:     1,
	}
}

// TierFraction returns the per-trade fraction of equity for the tier equity falls in.
func (p SizingPolicy) TierFraction(equity float64) float64 {
	for _, t := range p.Tiers {
		if t.UpTo <= 0 || equity <= t.UpTo {
			return t.Fraction
		}
	}
	return 0
}

// Stats is the realized track record used by the Kelly factor.
type Stats struct {
	Trades     int
	Wins       int
	AvgWinPct  float64
	AvgLossPct float64 // negative or zero
}

type SizingInputs struct {
	Equity       float64
	FreeCapital  float64
	ExposureCap  float64
	OpenExposure float64
	Grade        scoring.Grade
	Stats        Stats
}

const (
	LimitBase        = "base"
	LimitFreeCapital = "free_capital"
	LimitExposure    = "exposure"
	LimitTier        = "tier"
)

type Sizing struct {
	Notional   float64
	Base       float64
	Multiplier float64
	Kelly      float64
	Limit      string
}

type Sizer struct {
	p SizingPolicy
}

func NewSizer(p SizingPolicy) *Sizer {
	return &Sizer{p: p}
}

func (s *Sizer) Policy() SizingPolicy { return s.p }

// KellyFactor scales the grade multiplier by the realized edge. It is 1 until
// MinTradesForKelly trades exist and always within [KellyMin, KellyMax].
func (s *Sizer) KellyFactor(st Stats) float64 {
	if st.Trades < s.p.MinTradesForKelly || st.Trades <= 0 || s.p.KellyBaseline <= 0 {
		return 1
	}
	p := WinRate(st.Wins, st.Trades)
	f := p
	if st.AvgLossPct < 0 {
		f = Kelly(p, st.AvgWinPct/-st.AvgLossPct)
	}
	return clamp(f/s.p.KellyBaseline, s.p.KellyMin, s.p.KellyMax)
}

// Size returns the order notional for a candidate of the given grade.
func (s *Sizer) Size(in SizingInputs) (Sizing, error) {
	out := Sizing{
		Multiplier: s.p.Multipliers.For(in.Grade),
		Kelly:      s.KellyFactor(in.Stats),
	}
	if in.Equity <= 0 {
		return out, fmt.Errorf("equity %.2f: %w", in.Equity, ErrBelowMinimum)
	}

	out.Base = in.Equity * s.p.BaseFraction * out.Multiplier * out.Kelly
	out.Notional, out.Limit = out.Base, LimitBase

	ceilings := []struct {
		limit string
		v     float64
	}{
		{LimitFreeCapital, in.FreeCapital * (1 - s.p.FeeBufferPct/100)},
		{LimitExposure, in.ExposureCap - in.OpenExposure},
		{LimitTier, in.Equity * s.p.TierFraction(in.Equity)},
	}
	for _, c := range ceilings {
		if c.v < out.Notional {
			out.Notional, out.Limit = c.v, c.limit
		}
	}
	out.Notional = max(out.Notional, 0)
	if s.p.NotionalStep > 0 {
		out.Notional = math.Floor(out.Notional/s.p.NotionalStep) * s.p.NotionalStep
	}

	if out.Notional < s.p.MinOrderNotional || out.Notional <= 0 {
		return out, fmt.Errorf("%.2f < %.2f (bound by %s): %w", out.Notional, s.p.MinOrderNotional, out.Limit, ErrBelowMinimum)
	}
	return out, nil
}
