package scoring

import (
	"fmt"

	"github.com/rustyeddy/gradebot/market"
)

// SignalReason tags why a timeframe contributed to a score.
type SignalReason int

const (
	ReasonBandLow SignalReason = iota + 1
	ReasonRSIOversold
	ReasonStochOversold
	ReasonMACDBullish
	ReasonVolumeSurge
	ReasonMomentumDip
	ReasonTrendUp
	// ReasonCrashRisk marks a grade that was lowered for a sharp short-term drop.
	ReasonCrashRisk
)

var reasonNames = map[SignalReason]string{
	ReasonBandLow:       "band_low",
	ReasonRSIOversold:   "rsi_oversold",
	ReasonStochOversold: "stoch_oversold",
	ReasonMACDBullish:   "macd_bullish",
	ReasonVolumeSurge:   "volume_surge",
	ReasonMomentumDip:   "momentum_dip",
	ReasonTrendUp:       "trend_up",
	ReasonCrashRisk:     "crash_risk",
}

func (r SignalReason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("SignalReason(%d)", int(r))
}

// Signal is one reason observed on one timeframe.
type Signal struct {
	Reason    SignalReason
	Timeframe market.Timeframe
}

func (s Signal) String() string {
	return fmt.Sprintf("%s@%s", s.Reason, s.Timeframe)
}
