package indicators

import (
	"math"

	"github.com/rustyeddy/gradebot/market"
)

// Bands is a Bollinger Band reading at the last bar.
type Bands struct {
	Lower float64
	Mid   float64
	Upper float64
	// Position is where the last close sits between Lower (0) and Upper (1),
	// clamped to [0,1].
	Position float64
	// WidthPct is (Upper-Lower)/Mid in percent.
	WidthPct float64
}

// Bollinger computes period-SMA bands k population standard deviations wide.
// Short history collapses the bands onto the last close with a neutral position.
func Bollinger(bars []market.Bar, period int, k float64) Bands {
	if period <= 0 || len(bars) < period {
		last := 0.0
		if b, ok := market.Last(bars); ok {
			last = b.Close
		}
		return Bands{Lower: last, Mid: last, Upper: last, Position: NeutralBandPos}
	}

	closes := market.Closes(bars[len(bars)-period:])
	mid := SMA(closes, period)

	variance := 0.0
	for _, c := range closes {
		variance += (c - mid) * (c - mid)
	}
	sd := math.Sqrt(variance / float64(period))

	b := Bands{
		Lower: mid - k*sd,
		Mid:   mid,
		Upper: mid + k*sd,
	}
	b.Position = BandPosition(closes[len(closes)-1], b.Lower, b.Upper)
	if mid != 0 {
		b.WidthPct = (b.Upper - b.Lower) / mid * 100
	}
	return b
}

// BandPosition normalizes price between lower and upper and clamps it to [0,1].
// Degenerate bands give the neutral position.
func BandPosition(price, lower, upper float64) float64 {
	width := upper - lower
	if width <= 0 || math.IsNaN(width) || math.IsNaN(price) {
		return NeutralBandPos
	}
	return clamp((price-lower)/width, 0, 1)
}

// VolumeRatio compares the last bar's volume with the mean of the period bars
// before it. Short history or a zero mean returns NeutralVolumeRatio.
func VolumeRatio(bars []market.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return NeutralVolumeRatio
	}
	vols := market.Volumes(bars)
	prior := vols[len(vols)-1-period : len(vols)-1]
	mean := SMA(prior, period)
	if mean <= 0 {
		return NeutralVolumeRatio
	}
	return vols[len(vols)-1] / mean
}

// Momentum is the percent change of the close over lookback bars.
func Momentum(bars []market.Bar, lookback int) float64 {
	if lookback <= 0 || len(bars) < lookback+1 {
		return NeutralMomentum
	}
	base := bars[len(bars)-1-lookback].Close
	if base == 0 {
		return NeutralMomentum
	}
	return (bars[len(bars)-1].Close - base) / base * 100
}
