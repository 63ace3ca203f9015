package position

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrStaleTick is returned for a tick older than the last evaluated one.
var ErrStaleTick = errors.New("tick is older than the previous tick")

// ExitPolicy bounds the dynamic stop and holding time shared by every grade.
type ExitPolicy struct {
	// Inside StrictWindow the stop is exactly the grade's base stop.
	StrictWindow time.Duration `yaml:"strict_window" json:"strict_window"`
	// After it the stop loosens by RelaxPerStepPct for each RelaxStep held.
	RelaxStep       time.Duration `yaml:"relax_step" json:"relax_step"`
	RelaxPerStepPct float64       `yaml:"relax_per_step_pct" json:"relax_per_step_pct"`
	// Band width at which volatility starts widening the stop, and the widest factor.
	VolRefWidthPct float64 `yaml:"vol_ref_width_pct" json:"vol_ref_width_pct"`
	MaxVolFactor   float64 `yaml:"max_vol_factor" json:"max_vol_factor"`
	// StopFloorPct is the loosest stop ever allowed.
	StopFloorPct float64       `yaml:"stop_floor_pct" json:"stop_floor_pct"`
	MaxHold      time.Duration `yaml:"max_hold" json:"max_hold"`
}

func DefaultExitPolicy() ExitPolicy {
	return ExitPolicy{
		StrictWindow:    5 * time.Minute,
		RelaxStep:       15 * time.Minute,
		RelaxPerStepPct: 0.1,
		VolRefWidthPct:  2.0,
		MaxVolFactor:    1.5,
		StopFloorPct:    -2.0,
		MaxHold:         2 * time.Hour,
	}
}

// DynamicStop returns the stop-loss percent for a position held for elapsed
// with entry volatility volPct.
func (e ExitPolicy) DynamicStop(base float64, elapsed time.Duration, volPct float64) float64 {
	if elapsed < e.StrictWindow {
		return base
	}
	factor := 1.0
	if e.VolRefWidthPct > 0 && e.MaxVolFactor > 1 {
		factor = math.Min(math.Max(volPct/e.VolRefWidthPct, 1), e.MaxVolFactor)
	}
	stop := base * factor
	if e.RelaxStep > 0 {
		steps := math.Floor(float64(elapsed-e.StrictWindow) / float64(e.RelaxStep))
		stop -= steps * e.RelaxPerStepPct
	}
	if e.StopFloorPct < 0 && stop < e.StopFloorPct {
		stop = math.Min(e.StopFloorPct, base)
	}
	return stop
}

type Tick struct {
	Price float64
	Time  time.Time
}

// Decision is the outcome of one evaluated tick.
type Decision struct {
	Close     bool
	Reason    ExitReason
	State     State
	Price     float64
	ProfitPct float64
	StopPct   float64
	Time      time.Time
}

func (d Decision) String() string {
	if d.Close {
		return fmt.Sprintf("close %s at %.6g (%.3f%%)", d.Reason, d.Price, d.ProfitPct)
	}
	return fmt.Sprintf("hold %s at %.6g (%.3f%%, stop %.3f%%)", d.State, d.Price, d.ProfitPct, d.StopPct)
}

// Machine drives a single position from OPEN to CLOSED. Ticks must be fed
// from one goroutine; Position may be read from others.
type Machine struct {
	mu     sync.Mutex
	pos    Position
	policy ExitPolicy
	final  Decision
}

func NewMachine(p Position, policy ExitPolicy) *Machine {
	if p.MaxFavorablePrice == 0 {
		p.MaxFavorablePrice = p.EntryPrice
	}
	return &Machine{pos: p, policy: policy}
}

// Position returns a copy of the current position.
func (m *Machine) Position() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Evaluate applies one tick. Rules are checked in order: stop loss, target,
// trailing stop, time limit. Once closed the closing decision is returned for
// every later tick.
func (m *Machine) Evaluate(t Tick) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &m.pos
	if p.State == StateClosed {
		return m.final, nil
	}
	if t.Time.Before(p.LastTick) {
		return Decision{}, fmt.Errorf("%s at %s: %w", p.Instrument, t.Time.Format(time.RFC3339), ErrStaleTick)
	}
	if t.Price <= 0 {
		return Decision{}, fmt.Errorf("%s: invalid price %v", p.Instrument, t.Price)
	}
	p.LastTick = t.Time

	elapsed := t.Time.Sub(p.OpenedAt)
	profit := p.ProfitPct(t.Price)
	stop := m.policy.DynamicStop(p.Config.BaseStopLossPct, elapsed, p.VolatilityPct)
	d := Decision{State: p.State, Price: t.Price, ProfitPct: profit, StopPct: stop, Time: t.Time}

	switch {
	case profit <= stop:
		return m.close(d, ExitStopLoss), nil
	case profit >= p.Config.TargetProfitPct:
		return m.close(d, ExitTarget), nil
	case p.State == StateTrailing &&
		(p.PeakProfitPct-profit >= p.Config.TrailingGapPct || profit <= p.Config.MinProfitPct):
		return m.close(d, ExitTrailing), nil
	case m.policy.MaxHold > 0 && elapsed >= m.policy.MaxHold:
		return m.close(d, ExitTimeLimit), nil
	}

	if profit > p.PeakProfitPct {
		p.PeakProfitPct = profit
	}
	if t.Price > p.MaxFavorablePrice {
		p.MaxFavorablePrice = t.Price
	}
	if p.State == StateOpen && profit >= p.Config.TrailingStartPct {
		p.State = StateTrailing
	}
	d.State = p.State
	return d, nil
}

// ForceClose closes the position at t regardless of the rules.
func (m *Machine) ForceClose(t Tick, reason ExitReason) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos.State == StateClosed {
		return m.final
	}
	d := Decision{Price: t.Price, ProfitPct: m.pos.ProfitPct(t.Price), Time: t.Time}
	return m.close(d, reason)
}

// Settle records the actual fill price once the exit order completed.
func (m *Machine) Settle(fillPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fillPrice > 0 {
		m.pos.ExitPrice = fillPrice
	}
}

func (m *Machine) close(d Decision, reason ExitReason) Decision {
	d.Close = true
	d.Reason = reason
	d.State = StateClosed
	m.pos.State = StateClosed
	m.pos.ExitReason = reason
	m.pos.ExitPrice = d.Price
	m.pos.ClosedAt = d.Time
	m.final = d
	return d
}
