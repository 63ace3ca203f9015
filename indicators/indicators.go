// Package indicators provides technical analysis indicators for trading.
//
// Every batch function is total: when the bar history is shorter than the
// indicator needs, it returns the documented neutral value instead of an error.
package indicators

import "github.com/rustyeddy/gradebot/market"

// Neutral values returned when history is too short.
const (
	NeutralRSI         = 50.0
	NeutralBandPos     = 0.5
	NeutralStoch       = 50.0
	NeutralVolumeRatio = 1.0
	NeutralMomentum    = 0.0
)

// Indicator computes a single streaming value from bars.
// It is deterministic and safe to use in live and replayed data.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or the neutral value before warmup.
	Value() float64
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
