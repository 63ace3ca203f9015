package risk

// PnLPct is the percent change from entry to price.
func PnLPct(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (price - entry) / entry * 100
}

// WinRate returns wins/trades, 0 without trades.
func WinRate(wins, trades int) float64 {
	if trades <= 0 {
		return 0
	}
	return float64(wins) / float64(trades)
}

// Kelly returns the Kelly fraction p - (1-p)/b for win probability p and
// payoff ratio b. A non-positive b returns 0.
func Kelly(p, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return p - (1-p)/b
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
