package position

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rustyeddy/gradebot/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opened = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func silverPosition() Position {
	cfg := DefaultGradeConfigs().Silver
	return Position{
		ID:         "01HTEST",
		Instrument: "BTC",
		EntryPrice: 100,
		Quantity:   10_000,
		Notional:   1_000_000,
		Grade:      scoring.GradeSilver,
		Config:     cfg,
		OpenedAt:   opened,
	}
}

func at(m time.Duration, price float64) Tick {
	return Tick{Price: price, Time: opened.Add(m)}
}

func TestTrailingWinScenario(t *testing.T) {
	t.Parallel()

	m := NewMachine(silverPosition(), DefaultExitPolicy())

	d, err := m.Evaluate(at(time.Minute, 100.7))
	require.NoError(t, err)
	assert.False(t, d.Close)
	assert.Equal(t, StateTrailing, d.State)

	d, err = m.Evaluate(at(2*time.Minute, 100.9))
	require.NoError(t, err)
	assert.False(t, d.Close)
	assert.InDelta(t, 0.9, m.Position().PeakProfitPct, 1e-9)

	d, err = m.Evaluate(at(3*time.Minute, 100.5))
	require.NoError(t, err)
	require.True(t, d.Close)
	assert.Equal(t, ExitTrailing, d.Reason)
	assert.InDelta(t, 0.5, d.ProfitPct, 1e-9)
	assert.Greater(t, d.ProfitPct, 0.0)

	pos := m.Position()
	assert.Equal(t, StateClosed, pos.State)
	assert.Equal(t, 100.5, pos.ExitPrice)
	assert.InDelta(t, 100.9, pos.MaxFavorablePrice, 1e-9)
}

func TestEarlyStopIsStrict(t *testing.T) {
	t.Parallel()

	p := silverPosition()
	p.VolatilityPct = 4
	m := NewMachine(p, DefaultExitPolicy())

	d, err := m.Evaluate(at(2*time.Minute, 99.2))
	require.NoError(t, err)
	require.True(t, d.Close)
	assert.Equal(t, ExitStopLoss, d.Reason)
	assert.Equal(t, -0.7, d.StopPct)
}

func TestStopRelaxesAfterStrictWindow(t *testing.T) {
	t.Parallel()

	p := silverPosition()
	p.VolatilityPct = 3
	m := NewMachine(p, DefaultExitPolicy())

	// 20m held: -0.7 * 1.5 - 1 step * 0.1
	d, err := m.Evaluate(at(20*time.Minute, 99.2))
	require.NoError(t, err)
	assert.False(t, d.Close)
	assert.InDelta(t, -1.15, d.StopPct, 1e-9)

	d, err = m.Evaluate(at(21*time.Minute, 98.8))
	require.NoError(t, err)
	assert.True(t, d.Close)
	assert.Equal(t, ExitStopLoss, d.Reason)
}

func TestDynamicStop(t *testing.T) {
	t.Parallel()

	e := DefaultExitPolicy()
	tests := []struct {
		name    string
		elapsed time.Duration
		vol     float64
		want    float64
	}{
		{"strict window ignores volatility", 4 * time.Minute, 10, -0.7},
		{"calm market after window", 5 * time.Minute, 1, -0.7},
		{"volatility widens", 5 * time.Minute, 3, -1.05},
		{"volatility factor capped", 5 * time.Minute, 20, -1.05},
		{"relax steps", 50 * time.Minute, 1, -1.0},
		{"floor", 10 * time.Hour, 20, -2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, e.DynamicStop(-0.7, tt.elapsed, tt.vol), 1e-9)
		})
	}
}

func TestDynamicStopIsBounded(t *testing.T) {
	t.Parallel()

	e := DefaultExitPolicy()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		elapsed := time.Duration(rng.Int63n(int64(48 * time.Hour)))
		stop := e.DynamicStop(-0.7, elapsed, rng.Float64()*10)
		require.LessOrEqual(t, stop, -0.7)
		require.GreaterOrEqual(t, stop, e.StopFloorPct)
	}
}

func TestEvaluateOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ticks  []Tick
		reason ExitReason
	}{
		{"target", []Tick{at(time.Minute, 101.3)}, ExitTarget},
		{"target beats trailing", []Tick{at(time.Minute, 100.7), at(2*time.Minute, 101.25)}, ExitTarget},
		{"trailing gap after pullback", []Tick{at(time.Minute, 100.65), at(2*time.Minute, 100.45), at(3*time.Minute, 100.2)}, ExitTrailing},
		{"time limit at a loss", []Tick{at(2*time.Hour, 99.8)}, ExitTimeLimit},
		{"time limit at a gain", []Tick{at(3*time.Hour, 100.1)}, ExitTimeLimit},
		{"stop beats time limit", []Tick{at(3*time.Hour, 97)}, ExitStopLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMachine(silverPosition(), DefaultExitPolicy())
			var d Decision
			for _, tk := range tt.ticks {
				var err error
				d, err = m.Evaluate(tk)
				require.NoError(t, err)
			}
			require.True(t, d.Close)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestClosedIsTerminal(t *testing.T) {
	t.Parallel()

	m := NewMachine(silverPosition(), DefaultExitPolicy())
	first, err := m.Evaluate(at(time.Minute, 101.5))
	require.NoError(t, err)
	require.True(t, first.Close)

	again, err := m.Evaluate(at(2*time.Minute, 90))
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, first, m.ForceClose(at(3*time.Minute, 80), ExitShutdown))
}

func TestStaleTickRejected(t *testing.T) {
	t.Parallel()

	m := NewMachine(silverPosition(), DefaultExitPolicy())
	_, err := m.Evaluate(at(2*time.Minute, 100.1))
	require.NoError(t, err)
	_, err = m.Evaluate(at(time.Minute, 100.1))
	assert.ErrorIs(t, err, ErrStaleTick)

	_, err = m.Evaluate(at(3*time.Minute, 0))
	assert.Error(t, err)
}

func TestForceClose(t *testing.T) {
	t.Parallel()

	m := NewMachine(silverPosition(), DefaultExitPolicy())
	d := m.ForceClose(at(time.Minute, 100.2), ExitShutdown)
	assert.True(t, d.Close)
	assert.Equal(t, ExitShutdown, d.Reason)
	assert.True(t, m.Position().Closed())

	m.Settle(100.19)
	assert.Equal(t, 100.19, m.Position().ExitPrice)
}

func TestTrailingNeverRevertsAndPeakNeverFalls(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	for run := 0; run < 200; run++ {
		p := silverPosition()
		p.Config.TargetProfitPct = 50
		p.Config.BaseStopLossPct = -40
		p.Config.TrailingGapPct = 30
		p.Config.MinProfitPct = -30
		m := NewMachine(p, ExitPolicy{})

		price := 100.0
		prevPeak := 0.0
		trailing := false
		for i := 1; i <= 50; i++ {
			price *= 1 + (rng.Float64()-0.5)*0.02
			d, err := m.Evaluate(at(time.Duration(i)*time.Second, price))
			require.NoError(t, err)
			if d.Close {
				break
			}
			pos := m.Position()
			require.GreaterOrEqual(t, pos.PeakProfitPct, prevPeak)
			prevPeak = pos.PeakProfitPct
			if trailing {
				require.Equal(t, StateTrailing, pos.State)
			}
			trailing = pos.State == StateTrailing
		}
	}
}

func TestGradeConfigs(t *testing.T) {
	t.Parallel()

	cfgs := DefaultGradeConfigs()
	for _, g := range []scoring.Grade{scoring.GradeGold, scoring.GradeSilver, scoring.GradeBronze} {
		c, ok := cfgs.For(g)
		require.True(t, ok)
		assert.NoError(t, c.Validate(), g.String())
	}
	_, ok := cfgs.For(scoring.GradeNone)
	assert.False(t, ok)

	bad := cfgs.Silver
	bad.BaseStopLossPct = 0.5
	assert.Error(t, bad.Validate())
}

func TestStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TRAILING", StateTrailing.String())
	assert.Equal(t, "trailing_stop", ExitTrailing.String())
	assert.Equal(t, "ExitReason(42)", ExitReason(42).String())
}
