package indicators

import (
	"math"

	"github.com/rustyeddy/gradebot/market"
)

// RSI returns the Wilder RSI of the closes. It needs period+1 bars and
// returns NeutralRSI otherwise.
func RSI(bars []market.Bar, period int) float64 {
	if period <= 0 || len(bars) <= period {
		return NeutralRSI
	}
	r := NewRSI(period)
	for _, b := range bars {
		r.Update(b)
	}
	return r.Value()
}

// rsiSeries returns one RSI value per bar once the RSI is warm.
func rsiSeries(bars []market.Bar, period int) []float64 {
	if period <= 0 || len(bars) <= period {
		return nil
	}
	r := NewRSI(period)
	out := make([]float64, 0, len(bars)-period)
	for _, b := range bars {
		r.Update(b)
		if r.Ready() {
			out = append(out, r.Value())
		}
	}
	return out
}

// Stoch holds the %K and %D lines of a stochastic oscillator, both in [0,100].
type Stoch struct {
	K float64
	D float64
}

// StochRSIMinBars is the history StochRSI needs before it leaves the neutral value.
func StochRSIMinBars(rsiPeriod, stochPeriod, kSmooth, dSmooth int) int {
	return rsiPeriod + stochPeriod + kSmooth + dSmooth - 2
}

// StochRSI applies the stochastic formula to the RSI series and smooths it
// into %K and %D. A flat RSI window reads as the neutral 50.
func StochRSI(bars []market.Bar, rsiPeriod, stochPeriod, kSmooth, dSmooth int) Stoch {
	neutral := Stoch{K: NeutralStoch, D: NeutralStoch}
	if stochPeriod <= 0 || kSmooth <= 0 || dSmooth <= 0 {
		return neutral
	}
	if len(bars) < StochRSIMinBars(rsiPeriod, stochPeriod, kSmooth, dSmooth) {
		return neutral
	}

	rsi := rsiSeries(bars, rsiPeriod)
	if len(rsi) < stochPeriod {
		return neutral
	}

	raw := make([]float64, 0, len(rsi)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsi); i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range rsi[i-stochPeriod+1 : i+1] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi-lo == 0 {
			raw = append(raw, NeutralStoch)
			continue
		}
		raw = append(raw, (rsi[i]-lo)/(hi-lo)*100)
	}

	k := smaSeries(raw, kSmooth)
	d := smaSeries(k, dSmooth)
	if len(d) == 0 {
		return neutral
	}
	return Stoch{
		K: clamp(k[len(k)-1], 0, 100),
		D: clamp(d[len(d)-1], 0, 100),
	}
}

// MACDValue holds the MACD line, its signal line and their difference.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACDMinBars is the history MACD needs before it leaves the zero value.
func MACDMinBars(slow, signal int) int {
	return slow + signal - 1
}

// MACD computes EMA(fast)-EMA(slow) and its EMA(signal). Short history returns zeros.
func MACD(bars []market.Bar, fast, slow, signal int) MACDValue {
	if fast <= 0 || slow <= fast || signal <= 0 || len(bars) < MACDMinBars(slow, signal) {
		return MACDValue{}
	}
	closes := market.Closes(bars)
	fastS := emaSeries(closes, fast)
	slowS := emaSeries(closes, slow)

	// align the fast series to the slow series' first value
	offset := len(fastS) - len(slowS)
	line := make([]float64, len(slowS))
	for i := range slowS {
		line[i] = fastS[i+offset] - slowS[i]
	}

	sig := emaSeries(line, signal)
	if len(sig) == 0 {
		return MACDValue{}
	}
	m := line[len(line)-1]
	s := sig[len(sig)-1]
	return MACDValue{MACD: m, Signal: s, Histogram: m - s}
}
