// Package scanner picks the best entry candidate from an instrument universe.
package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/gradebot/indicators"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/scoring"
	"github.com/rustyeddy/gradebot/snapshot"
	"go.uber.org/zap"
)

// Builder produces a complete multi-timeframe snapshot or an error.
type Builder interface {
	Build(ctx context.Context, instrument string, tfs []market.Timeframe) (snapshot.Snapshot, error)
}

// Scorer grades snapshots and judges timeframe alignment.
type Scorer interface {
	Score(snap snapshot.Snapshot) scoring.Result
	Aligned(r scoring.Result) bool
}

// Config controls filtering.
type Config struct {
	Timeframes       []market.Timeframe `yaml:"timeframes" json:"timeframes"`
	RequireAlignment bool               `yaml:"require_alignment" json:"require_alignment"`

	// Crash guard: a drop of at least CrashDropPct from the window high on
	// GuardTimeframe together with a volume spike parks the instrument for Cooldown.
	GuardTimeframe   market.Timeframe `yaml:"guard_timeframe" json:"guard_timeframe"`
	GuardBars        int              `yaml:"guard_bars" json:"guard_bars"`
	CrashDropPct     float64          `yaml:"crash_drop_pct" json:"crash_drop_pct"`
	CrashVolumeRatio float64          `yaml:"crash_volume_ratio" json:"crash_volume_ratio"`
	Cooldown         time.Duration    `yaml:"cooldown" json:"cooldown"`
}

func DefaultConfig() Config {
	return Config{
		Timeframes:       []market.Timeframe{market.M5, market.M15, market.H1},
		RequireAlignment: false,
		GuardTimeframe:   market.M1,
		GuardBars:        15,
		CrashDropPct:     5.0,
		CrashVolumeRatio: 3.0,
		Cooldown:         30 * time.Minute,
	}
}

// Candidate is a scored instrument eligible for entry.
type Candidate struct {
	Instrument string
	Result     scoring.Result
	Snapshot   snapshot.Snapshot
}

// Scanner is safe for use by one scan loop; cooldown state is mutex guarded
// so it can also be inspected concurrently.
type Scanner struct {
	cfg     Config
	bars    market.BarSource
	builder Builder
	scorer  Scorer
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	cooldown map[string]time.Time
}

func New(cfg Config, bars market.BarSource, b Builder, s Scorer, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		cfg:      cfg,
		bars:     bars,
		builder:  b,
		scorer:   s,
		log:      log,
		now:      time.Now,
		cooldown: make(map[string]time.Time),
	}
}

// SetClock replaces the wall clock, mainly for tests.
func (s *Scanner) SetClock(now func() time.Time) { s.now = now }

// Scan returns the best eligible candidate, or nil when nothing qualifies.
// The error is non-nil only when ctx is done.
func (s *Scanner) Scan(ctx context.Context, universe, held []string) (*Candidate, error) {
	ranked, err := s.Rank(ctx, universe, held)
	if err != nil || len(ranked) == 0 {
		return nil, err
	}
	best := ranked[0]
	return &best, nil
}

// Rank scores every eligible instrument and returns them best first.
func (s *Scanner) Rank(ctx context.Context, universe, held []string) ([]Candidate, error) {
	skip := make(map[string]bool, len(held))
	for _, h := range held {
		skip[h] = true
	}

	var out []Candidate
	for _, instr := range universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if skip[instr] {
			continue
		}
		if s.cooling(instr) {
			s.log.Debug("instrument cooling down", zap.String("instrument", instr))
			continue
		}

		c, ok, err := s.evaluate(ctx, instr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Info("skip instrument", zap.String("instrument", instr), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Result, out[j].Result
		if a.Raw != b.Raw {
			return a.Beats(b)
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out, nil
}

func (s *Scanner) evaluate(ctx context.Context, instr string) (Candidate, bool, error) {
	crashed, err := s.crashGuard(ctx, instr)
	if err != nil {
		return Candidate{}, false, err
	}
	if crashed {
		return Candidate{}, false, nil
	}

	snap, err := s.builder.Build(ctx, instr, s.cfg.Timeframes)
	if err != nil {
		return Candidate{}, false, err
	}

	res := s.scorer.Score(snap)
	if res.Grade == scoring.GradeNone {
		return Candidate{}, false, nil
	}
	if s.cfg.RequireAlignment && !s.scorer.Aligned(res) {
		s.log.Debug("timeframes not aligned", zap.String("instrument", instr), zap.Float64("score", res.Score))
		return Candidate{}, false, nil
	}
	return Candidate{Instrument: instr, Result: res, Snapshot: snap}, true, nil
}

// crashGuard reports whether instr just crashed and starts its cooldown if so.
func (s *Scanner) crashGuard(ctx context.Context, instr string) (bool, error) {
	if s.cfg.GuardBars < 2 || s.cfg.CrashDropPct <= 0 {
		return false, nil
	}
	bars, err := s.bars.GetBars(ctx, instr, s.cfg.GuardTimeframe, s.cfg.GuardBars)
	if err != nil {
		return false, err
	}
	if len(bars) < 2 {
		return false, errors.Join(market.ErrDataUnavailable, errors.New("crash guard needs two bars"))
	}

	high := bars[0].High
	for _, b := range bars {
		high = max(high, b.High)
	}
	last := bars[len(bars)-1].Close
	if high <= 0 {
		return false, nil
	}
	drop := (last - high) / high * 100
	volume := indicators.VolumeRatio(bars, len(bars)-1)

	if drop <= -s.cfg.CrashDropPct && volume >= s.cfg.CrashVolumeRatio {
		until := s.now().Add(s.cfg.Cooldown)
		s.mu.Lock()
		s.cooldown[instr] = until
		s.mu.Unlock()
		s.log.Warn("crash guard tripped",
			zap.String("instrument", instr),
			zap.Float64("drop_pct", drop),
			zap.Float64("volume_ratio", volume),
			zap.Time("until", until))
		return true, nil
	}
	return false, nil
}

func (s *Scanner) cooling(instr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldown[instr]
	if !ok {
		return false
	}
	if !s.now().Before(until) {
		delete(s.cooldown, instr)
		return false
	}
	return true
}

// CoolingDown lists instruments currently parked by the crash guard.
func (s *Scanner) CoolingDown() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.cooldown))
	for k, v := range s.cooldown {
		out[k] = v
	}
	return out
}
