// Package scoring maps a multi-timeframe snapshot to a 0-100 opportunity
// score, a Grade and the typed reasons behind it.
package scoring

import (
	"math"
	"sort"

	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/snapshot"
)

// Weights sets the maximum points of each bucket and the weight of each timeframe.
type Weights struct {
	Timeframes map[market.Timeframe]float64 `yaml:"timeframes" json:"timeframes"`

	Band     float64 `yaml:"band" json:"band"`
	RSI      float64 `yaml:"rsi" json:"rsi"`
	Stoch    float64 `yaml:"stoch" json:"stoch"`
	MACD     float64 `yaml:"macd" json:"macd"`
	Volume   float64 `yaml:"volume" json:"volume"`
	Momentum float64 `yaml:"momentum" json:"momentum"`
	Trend    float64 `yaml:"trend" json:"trend"`

	// BullishPct is the timeframe score (0-100) at which a timeframe counts as bullish.
	BullishPct float64 `yaml:"bullish_pct" json:"bullish_pct"`
	// CautionMomentumPct on the shortest timeframe lowers the grade one level.
	CautionMomentumPct float64 `yaml:"caution_momentum_pct" json:"caution_momentum_pct"`
}

func DefaultWeights() Weights {
	return Weights{
		Timeframes: map[market.Timeframe]float64{
			market.M5:  1.0,
			market.M15: 1.5,
			market.H1:  2.0,
		},
		Band:               25,
		RSI:                20,
		Stoch:              15,
		MACD:               15,
		Volume:             10,
		Momentum:           10,
		Trend:              5,
		BullishPct:         40,
		CautionMomentumPct: -3.0,
	}
}

// bucketMax is the most points a single timeframe can earn.
func (w Weights) bucketMax() float64 {
	return w.Band + w.RSI + w.Stoch + w.MACD + w.Volume + w.Momentum + w.Trend
}

// FrameScore is the contribution of one timeframe.
type FrameScore struct {
	Points  float64
	Pct     float64
	Weight  float64
	Bullish bool
}

// Result is the outcome of scoring one snapshot.
type Result struct {
	Score   float64
	Raw     float64
	Grade   Grade
	Reasons []Signal
	Frames  map[market.Timeframe]FrameScore
}

// Beats reports whether r ranks above o. Ranking uses the raw weighted points.
func (r Result) Beats(o Result) bool {
	return r.Raw > o.Raw
}

// Scorer is a pure function of its Weights.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

func (s *Scorer) Weights() Weights { return s.w }

// Score grades a snapshot. Identical snapshots always produce identical results.
func (s *Scorer) Score(snap snapshot.Snapshot) Result {
	res := Result{Frames: make(map[market.Timeframe]FrameScore, len(snap.Frames))}

	tfs := make([]market.Timeframe, 0, len(snap.Frames))
	for tf := range snap.Frames {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })

	perFrame := s.w.bucketMax()
	totalWeight := 0.0
	scored := make([]market.Timeframe, 0, len(tfs))
	for _, tf := range tfs {
		weight := s.w.Timeframes[tf]
		if weight <= 0 {
			continue
		}
		scored = append(scored, tf)
		points, reasons := s.frame(snap.Frames[tf], snap.Price)
		for _, r := range reasons {
			res.Reasons = append(res.Reasons, Signal{Reason: r, Timeframe: tf})
		}

		fs := FrameScore{Points: points, Weight: weight}
		if perFrame > 0 {
			fs.Pct = points / perFrame * 100
		}
		fs.Bullish = fs.Pct >= s.w.BullishPct
		res.Frames[tf] = fs

		res.Raw += weight * points
		totalWeight += weight
	}

	if totalWeight > 0 && perFrame > 0 {
		res.Score = clamp(res.Raw/(totalWeight*perFrame)*100, 0, 100)
	}
	res.Grade = GradeFor(res.Score, len(res.Reasons))

	// only a timeframe that contributed to the score can downgrade it
	if short, ok := market.Shortest(scored); ok && res.Grade != GradeNone {
		if snap.Frames[short].MomentumPct <= s.w.CautionMomentumPct {
			res.Grade = res.Grade.Downgrade()
			res.Reasons = append(res.Reasons, Signal{Reason: ReasonCrashRisk, Timeframe: short})
		}
	}
	return res
}

// Aligned reports whether bullish timeframes hold more than half of the total weight.
func (s *Scorer) Aligned(r Result) bool {
	var bullish, total float64
	for _, fs := range r.Frames {
		total += fs.Weight
		if fs.Bullish {
			bullish += fs.Weight
		}
	}
	return total > 0 && bullish > total/2
}

type tier struct {
	limit float64
	frac  float64
}

// atOrBelow returns the fraction of the first tier whose limit v does not exceed.
func atOrBelow(v float64, tiers []tier) float64 {
	for _, t := range tiers {
		if v <= t.limit {
			return t.frac
		}
	}
	return 0
}

func atOrAbove(v float64, tiers []tier) float64 {
	for _, t := range tiers {
		if v >= t.limit {
			return t.frac
		}
	}
	return 0
}

var (
	bandTiers     = []tier{{0.05, 1}, {0.15, 0.8}, {0.25, 0.5}, {0.35, 0.2}}
	rsiTiers      = []tier{{25, 1}, {30, 0.8}, {35, 0.5}, {40, 0.2}}
	stochTiers    = []tier{{20, 0.8}, {30, 0.5}, {40, 0.2}}
	volumeTiers   = []tier{{3, 1}, {2, 0.8}, {1.5, 0.5}, {1.2, 0.2}}
	momentumTiers = []tier{{-2, 1}, {-1, 0.8}, {-0.5, 0.5}, {-0.2, 0.2}}
)

// reasonFrac is the bucket fraction at which a reason is recorded.
const reasonFrac = 0.5

func (s *Scorer) frame(in snapshot.Indicators, price float64) (float64, []SignalReason) {
	var points float64
	var reasons []SignalReason
	add := func(bucket, frac float64, r SignalReason, minFrac float64) {
		if frac <= 0 || math.IsNaN(frac) {
			return
		}
		points += bucket * frac
		if frac >= minFrac {
			reasons = append(reasons, r)
		}
	}

	add(s.w.Band, atOrBelow(in.BBPosition, bandTiers), ReasonBandLow, reasonFrac)
	add(s.w.RSI, atOrBelow(in.RSI, rsiTiers), ReasonRSIOversold, reasonFrac)

	stoch := atOrBelow(in.StochK, stochTiers)
	if in.StochK <= 20 && in.StochK > in.StochD {
		stoch = 1
	}
	add(s.w.Stoch, stoch, ReasonStochOversold, reasonFrac)

	macd := 0.0
	switch {
	case in.MACDHistogram > 0 && in.MACD < 0:
		macd = 1
	case in.MACDHistogram > 0:
		macd = 0.5
	}
	add(s.w.MACD, macd, ReasonMACDBullish, reasonFrac)

	add(s.w.Volume, atOrAbove(in.VolumeRatio, volumeTiers), ReasonVolumeSurge, reasonFrac)
	add(s.w.Momentum, atOrBelow(in.MomentumPct, momentumTiers), ReasonMomentumDip, reasonFrac)

	trend := 0.0
	if price >= in.BBMid && in.BBMid > 0 {
		trend += 0.5
	}
	if in.MACD > 0 {
		trend += 0.5
	}
	add(s.w.Trend, trend, ReasonTrendUp, 1)

	return points, reasons
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
