package indicators

import (
	"fmt"

	"github.com/rustyeddy/gradebot/market"
)

// SimpleMA is a streaming Simple Moving Average.
type SimpleMA struct {
	period int
	window []float64
	sum    float64
}

func NewMA(period int) *SimpleMA {
	return &SimpleMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (m *SimpleMA) Name() string { return fmt.Sprintf("MA(%d)", m.period) }

func (m *SimpleMA) Warmup() int { return m.period }

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
	m.sum = 0
}

func (m *SimpleMA) Update(b market.Bar) { m.Add(b.Close) }

// Add consumes a raw value instead of a bar close.
func (m *SimpleMA) Add(v float64) {
	m.window = append(m.window, v)
	m.sum += v
	if len(m.window) > m.period {
		m.sum -= m.window[0]
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool { return m.period > 0 && len(m.window) >= m.period }

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(len(m.window))
}

// ExponentialMA is a streaming EMA seeded with the SMA of its first period values.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }

func (e *ExponentialMA) Warmup() int { return e.period }

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(b market.Bar) { e.Add(b.Close) }

func (e *ExponentialMA) Add(v float64) {
	if e.count < e.period {
		e.warmupSum += v
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (v-e.ema)*e.multiplier + e.ema
}

func (e *ExponentialMA) Ready() bool { return e.period > 0 && e.count >= e.period }

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}

// WilderRSI is a streaming RSI using Wilder smoothing.
type WilderRSI struct {
	period  int
	prev    float64
	started bool
	changes int
	avgGain float64
	avgLoss float64
	gainSum float64
	lossSum float64
}

func NewRSI(period int) *WilderRSI {
	return &WilderRSI{period: period}
}

func (r *WilderRSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }

// Warmup counts bars: period changes need period+1 closes.
func (r *WilderRSI) Warmup() int { return r.period + 1 }

func (r *WilderRSI) Reset() {
	*r = WilderRSI{period: r.period}
}

func (r *WilderRSI) Update(b market.Bar) { r.Add(b.Close) }

func (r *WilderRSI) Add(v float64) {
	if !r.started {
		r.prev = v
		r.started = true
		return
	}
	change := v - r.prev
	r.prev = v

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.changes++
	p := float64(r.period)
	switch {
	case r.changes < r.period:
		r.gainSum += gain
		r.lossSum += loss
	case r.changes == r.period:
		r.avgGain = (r.gainSum + gain) / p
		r.avgLoss = (r.lossSum + loss) / p
	default:
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
}

func (r *WilderRSI) Ready() bool { return r.period > 0 && r.changes >= r.period }

func (r *WilderRSI) Value() float64 {
	if !r.Ready() {
		return NeutralRSI
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return NeutralRSI
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
