package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/gradebot/market"
	"go.uber.org/zap"
)

// Builder fetches bars for every timeframe and reduces them to a Snapshot.
type Builder struct {
	src      market.DataSource
	params   Params
	barCount int
	minBars  int
	attempts int
	backoff  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// BuilderConfig tunes how much history is requested and how hard to retry.
type BuilderConfig struct {
	Params   Params        `yaml:"params" json:"params"`
	BarCount int           `yaml:"bar_count" json:"bar_count"`
	MinBars  int           `yaml:"min_bars" json:"min_bars"`
	Attempts int           `yaml:"attempts" json:"attempts"`
	Backoff  time.Duration `yaml:"backoff" json:"backoff"`
}

func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Params:   DefaultParams(),
		BarCount: 200,
		Attempts: 3,
		Backoff:  500 * time.Millisecond,
	}
}

func NewBuilder(src market.DataSource, cfg BuilderConfig, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	minBars := cfg.MinBars
	if minBars <= 0 {
		minBars = cfg.Params.MinBars()
	}
	barCount := max(cfg.BarCount, minBars)
	attempts := max(cfg.Attempts, 1)
	return &Builder{
		src:      src,
		params:   cfg.Params,
		barCount: barCount,
		minBars:  minBars,
		attempts: attempts,
		backoff:  cfg.Backoff,
		log:      log,
		now:      time.Now,
	}
}

// Params returns the indicator periods the builder reduces with.
func (b *Builder) Params() Params { return b.params }

// Build returns a snapshot covering every timeframe or an error wrapping
// market.ErrDataUnavailable. A snapshot is never returned with a timeframe missing.
func (b *Builder) Build(ctx context.Context, instrument string, tfs []market.Timeframe) (Snapshot, error) {
	if len(tfs) == 0 {
		return Snapshot{}, fmt.Errorf("snapshot %s: no timeframes: %w", instrument, market.ErrDataUnavailable)
	}

	frames := make(map[market.Timeframe]Indicators, len(tfs))
	for _, tf := range tfs {
		bars, err := b.fetch(ctx, instrument, tf)
		if err != nil {
			return Snapshot{}, err
		}
		frames[tf] = Compute(bars, b.params)
	}

	var tick market.Tick
	err := b.retry(ctx, func() error {
		var err error
		tick, err = b.src.GetPrice(ctx, instrument)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
		return Snapshot{}, fmt.Errorf("snapshot %s price: %w: %w", instrument, market.ErrDataUnavailable, err)
	}

	return Snapshot{
		Instrument: instrument,
		Price:      tick.Price,
		Frames:     frames,
		TakenAt:    b.now(),
	}, nil
}

func (b *Builder) fetch(ctx context.Context, instrument string, tf market.Timeframe) ([]market.Bar, error) {
	var bars []market.Bar
	err := b.retry(ctx, func() error {
		got, err := b.src.GetBars(ctx, instrument, tf, b.barCount)
		if err != nil {
			return err
		}
		if len(got) < b.minBars {
			return fmt.Errorf("%d bars, need %d", len(got), b.minBars)
		}
		bars = got
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Debug("timeframe unavailable",
			zap.String("instrument", instrument),
			zap.String("timeframe", tf.String()),
			zap.Error(err))
		return nil, fmt.Errorf("snapshot %s %s: %w: %w", instrument, tf, market.ErrDataUnavailable, err)
	}
	return bars, nil
}

func (b *Builder) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < b.attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == b.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.backoff):
		}
	}
	return err
}
