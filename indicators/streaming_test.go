package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleMAStreaming(t *testing.T) {
	bars := barsFromCloses(102, 105, 106, 108, 110)

	t.Run("basic functionality", func(t *testing.T) {
		ma := NewMA(3)
		assert.Equal(t, "MA(3)", ma.Name())
		assert.Equal(t, 3, ma.Warmup())
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())

		ma.Update(bars[0])
		ma.Update(bars[1])
		assert.False(t, ma.Ready())

		ma.Update(bars[2])
		assert.True(t, ma.Ready())
		assert.InDelta(t, (102.0+105.0+106.0)/3.0, ma.Value(), 0.001)

		// window slides to the last three
		ma.Update(bars[3])
		assert.InDelta(t, (105.0+106.0+108.0)/3.0, ma.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ma := NewMA(2)
		ma.Update(bars[0])
		ma.Update(bars[1])
		assert.True(t, ma.Ready())

		ma.Reset()
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())
	})

	t.Run("matches batch calculation", func(t *testing.T) {
		ma := NewMA(3)
		for _, b := range bars {
			ma.Update(b)
		}
		assert.InDelta(t, SMA([]float64{102, 105, 106, 108, 110}, 3), ma.Value(), 0.001)
	})
}

func TestExponentialMAStreaming(t *testing.T) {
	bars := barsFromCloses(102, 105, 106, 108, 110, 111, 113)

	t.Run("basic functionality", func(t *testing.T) {
		ema := NewEMA(3)
		assert.Equal(t, "EMA(3)", ema.Name())
		assert.Equal(t, 3, ema.Warmup())
		assert.False(t, ema.Ready())

		ema.Update(bars[0])
		ema.Update(bars[1])
		assert.False(t, ema.Ready())

		// third update seeds with the SMA
		ema.Update(bars[2])
		assert.True(t, ema.Ready())
		seed := (102.0 + 105.0 + 106.0) / 3.0
		assert.InDelta(t, seed, ema.Value(), 0.001)

		// multiplier = 2/(3+1) = 0.5
		ema.Update(bars[3])
		assert.InDelta(t, (108.0-seed)*0.5+seed, ema.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ema := NewEMA(2)
		ema.Update(bars[0])
		ema.Update(bars[1])
		assert.True(t, ema.Ready())

		ema.Reset()
		assert.False(t, ema.Ready())
		assert.Equal(t, 0.0, ema.Value())
	})

	t.Run("matches batch calculation", func(t *testing.T) {
		ema := NewEMA(3)
		closes := []float64{102, 105, 106, 108, 110, 111, 113}
		for _, b := range bars {
			ema.Update(b)
		}
		assert.InDelta(t, EMA(closes, 3), ema.Value(), 1e-9)
	})
}

func TestWilderRSIStreaming(t *testing.T) {
	bars := barsFromCloses(44, 44.3, 44.1, 44.5, 43.9, 44.6, 45.1, 45.4, 45.0, 45.8)

	r := NewRSI(5)
	assert.Equal(t, "RSI(5)", r.Name())
	assert.Equal(t, 6, r.Warmup())

	for i, b := range bars {
		r.Update(b)
		if i+1 < r.Warmup() {
			assert.False(t, r.Ready())
			assert.Equal(t, NeutralRSI, r.Value())
		}
	}
	assert.True(t, r.Ready())
	assert.InDelta(t, RSI(bars, 5), r.Value(), 1e-12)
	assert.Greater(t, r.Value(), 50.0)

	r.Reset()
	assert.False(t, r.Ready())
}
