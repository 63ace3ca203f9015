package market

import (
	"fmt"
	"time"
)

// Timeframe names a bar interval, e.g. "5m" or "1h".
type Timeframe string

const (
	M1  Timeframe = "1m"
	M3  Timeframe = "3m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
	M30 Timeframe = "30m"
	H1  Timeframe = "1h"
	H4  Timeframe = "4h"
	D1  Timeframe = "1d"
)

var durations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M3:  3 * time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
}

// Duration returns the bar interval, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return durations[tf]
}

// Valid reports whether tf is one of the known timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := durations[tf]
	return ok
}

// Minutes returns the interval in whole minutes.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}

func (tf Timeframe) String() string { return string(tf) }

// ParseTimeframe validates s as a timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Shortest returns the timeframe with the smallest interval.
func Shortest(tfs []Timeframe) (Timeframe, bool) {
	var best Timeframe
	for _, tf := range tfs {
		if best == "" || tf.Duration() < best.Duration() {
			best = tf
		}
	}
	return best, best != ""
}
