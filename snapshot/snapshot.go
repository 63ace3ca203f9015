// Package snapshot reduces multi-timeframe bar history into indicator readings.
package snapshot

import (
	"time"

	"github.com/rustyeddy/gradebot/indicators"
	"github.com/rustyeddy/gradebot/market"
)

// Params holds the indicator periods used for every timeframe.
type Params struct {
	RSIPeriod        int     `yaml:"rsi_period" json:"rsi_period"`
	BBPeriod         int     `yaml:"bb_period" json:"bb_period"`
	BBStdDev         float64 `yaml:"bb_stddev" json:"bb_stddev"`
	MACDFast         int     `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow         int     `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal       int     `yaml:"macd_signal" json:"macd_signal"`
	StochRSIPeriod   int     `yaml:"stoch_rsi_period" json:"stoch_rsi_period"`
	StochPeriod      int     `yaml:"stoch_period" json:"stoch_period"`
	StochK           int     `yaml:"stoch_k" json:"stoch_k"`
	StochD           int     `yaml:"stoch_d" json:"stoch_d"`
	VolumePeriod     int     `yaml:"volume_period" json:"volume_period"`
	MomentumLookback int     `yaml:"momentum_lookback" json:"momentum_lookback"`
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		BBPeriod:         20,
		BBStdDev:         2.0,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		StochRSIPeriod:   14,
		StochPeriod:      14,
		StochK:           3,
		StochD:           3,
		VolumePeriod:     20,
		MomentumLookback: 3,
	}
}

// MinBars is the history every indicator needs to leave its neutral value.
func (p Params) MinBars() int {
	need := []int{
		p.RSIPeriod + 1,
		p.BBPeriod,
		indicators.MACDMinBars(p.MACDSlow, p.MACDSignal),
		indicators.StochRSIMinBars(p.StochRSIPeriod, p.StochPeriod, p.StochK, p.StochD),
		p.VolumePeriod + 1,
		p.MomentumLookback + 1,
	}
	out := 0
	for _, n := range need {
		out = max(out, n)
	}
	return out
}

// Indicators is the indicator reading of one instrument on one timeframe.
type Indicators struct {
	Close         float64
	RSI           float64
	BBLower       float64
	BBMid         float64
	BBUpper       float64
	BBPosition    float64
	BBWidthPct    float64
	StochK        float64
	StochD        float64
	MACD          float64
	MACDSignal    float64
	MACDHistogram float64
	VolumeRatio   float64
	MomentumPct   float64
	Bars          int
}

// Compute reduces bars to an Indicators value. It never fails; short history
// yields the neutral readings documented in package indicators.
func Compute(bars []market.Bar, p Params) Indicators {
	bb := indicators.Bollinger(bars, p.BBPeriod, p.BBStdDev)
	st := indicators.StochRSI(bars, p.StochRSIPeriod, p.StochPeriod, p.StochK, p.StochD)
	m := indicators.MACD(bars, p.MACDFast, p.MACDSlow, p.MACDSignal)

	out := Indicators{
		RSI:           indicators.RSI(bars, p.RSIPeriod),
		BBLower:       bb.Lower,
		BBMid:         bb.Mid,
		BBUpper:       bb.Upper,
		BBPosition:    bb.Position,
		BBWidthPct:    bb.WidthPct,
		StochK:        st.K,
		StochD:        st.D,
		MACD:          m.MACD,
		MACDSignal:    m.Signal,
		MACDHistogram: m.Histogram,
		VolumeRatio:   indicators.VolumeRatio(bars, p.VolumePeriod),
		MomentumPct:   indicators.Momentum(bars, p.MomentumLookback),
		Bars:          len(bars),
	}
	if last, ok := market.Last(bars); ok {
		out.Close = last.Close
	}
	return out
}

// Snapshot is every timeframe's reading for one instrument in one scan cycle.
type Snapshot struct {
	Instrument string
	Price      float64
	Frames     map[market.Timeframe]Indicators
	TakenAt    time.Time
}

// Frame returns the reading for tf.
func (s Snapshot) Frame(tf market.Timeframe) (Indicators, bool) {
	in, ok := s.Frames[tf]
	return in, ok
}
