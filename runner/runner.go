// Package runner drives the trading loop: scan for a candidate, size it, buy,
// then watch each position on its own goroutine until it exits.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/gradebot/broker"
	"github.com/rustyeddy/gradebot/journal"
	"github.com/rustyeddy/gradebot/ledger"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/metrics"
	"github.com/rustyeddy/gradebot/notify"
	"github.com/rustyeddy/gradebot/pkg/id"
	"github.com/rustyeddy/gradebot/position"
	"github.com/rustyeddy/gradebot/risk"
	"github.com/rustyeddy/gradebot/scanner"
	"go.uber.org/zap"
)

// Scanner finds the best entry candidate outside held.
type Scanner interface {
	Scan(ctx context.Context, universe, held []string) (*scanner.Candidate, error)
}

// Strategy is what to trade and how positions exit.
type Strategy struct {
	Universe         []string
	Grades           position.GradeConfigs
	Exit             position.ExitPolicy
	MaxOpenPositions int
}

// Deps are the collaborators shared by the scan loop and every watcher.
// Journal, Notifier, Metrics, IDs, Log and Now are optional.
type Deps struct {
	Market   market.PriceSource
	Orders   broker.Orders
	Balance  broker.Balance
	Scanner  Scanner
	Sizer    *risk.Sizer
	Ledger   *ledger.Ledger
	Journal  journal.Journal
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	IDs      *id.Generator
	Log      *zap.Logger
	Now      func() time.Time
}

type Runner struct {
	cfg      Config
	strategy Strategy
	d        Deps
	log      *zap.Logger
	reg      *Registry
	wg       sync.WaitGroup

	mu        sync.Mutex
	lastBlock string
}

func New(cfg Config, s Strategy, d Deps) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Market == nil || d.Orders == nil || d.Balance == nil || d.Scanner == nil || d.Sizer == nil || d.Ledger == nil {
		return nil, errors.New("runner: market, orders, balance, scanner, sizer and ledger are required")
	}
	if len(s.Universe) == 0 {
		return nil, errors.New("runner: empty universe")
	}
	if s.MaxOpenPositions <= 0 {
		s.MaxOpenPositions = 1
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.IDs == nil {
		d.IDs = id.NewGenerator()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Runner{cfg: cfg, strategy: s, d: d, log: d.Log.Named("runner"), reg: NewRegistry()}, nil
}

func (r *Runner) Registry() *Registry { return r.reg }

// Run scans immediately and then every ScanInterval until ctx is done. It
// then stops every watcher, closes what is still open and flushes the ledger.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("runner started",
		zap.Strings("universe", r.strategy.Universe),
		zap.Duration("scan_interval", r.cfg.ScanInterval),
		zap.Duration("poll_interval", r.cfg.PollInterval))

	t := time.NewTicker(r.cfg.ScanInterval)
	defer t.Stop()
	for {
		if _, err := r.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("scan cycle", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return r.shutdown()
		case <-t.C:
		}
	}
}

// ScanOnce runs one scan cycle and reports whether a position was opened.
func (r *Runner) ScanOnce(ctx context.Context) (bool, error) {
	r.retryStuck(ctx)
	if r.reg.Len() >= r.strategy.MaxOpenPositions {
		return false, nil
	}
	now := r.d.Now()
	if d := r.d.Ledger.Decision(now); !d.Allowed {
		r.blocked(ctx, d)
		return false, nil
	}
	r.unblocked()

	cand, err := r.d.Scanner.Scan(ctx, r.strategy.Universe, r.reg.Held())
	r.d.Metrics.IncScans()
	if err != nil {
		return false, err
	}
	if cand == nil {
		r.log.Debug("no candidate")
		return false, nil
	}
	r.d.Metrics.IncCandidate(cand.Result.Grade.String())

	if err := r.enter(ctx, cand); err != nil {
		if errors.Is(err, risk.ErrBelowMinimum) {
			r.log.Info("skip entry", zap.String("instrument", cand.Instrument), zap.Error(err))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Runner) blocked(ctx context.Context, d risk.Decision) {
	reason := d.Reason()
	for _, v := range d.Violations {
		r.d.Metrics.IncEntryBlocked(v.Code)
	}
	r.mu.Lock()
	changed := reason != r.lastBlock
	r.lastBlock = reason
	r.mu.Unlock()

	r.log.Info("entry blocked", zap.String("reason", reason))
	if changed {
		r.notify(ctx, notify.Warnf("entries paused", "%s", reason))
	}
}

func (r *Runner) unblocked() {
	r.mu.Lock()
	r.lastBlock = ""
	r.mu.Unlock()
}

func (r *Runner) enter(ctx context.Context, cand *scanner.Candidate) error {
	grade := cand.Result.Grade
	gc, ok := r.strategy.Grades.For(grade)
	if !ok {
		return fmt.Errorf("no exit profile for grade %s", grade)
	}

	acct, err := r.d.Balance.Account(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	equity := r.d.Ledger.Equity()
	sizing, err := r.d.Sizer.Size(risk.SizingInputs{
		Equity:       equity,
		FreeCapital:  acct.Free,
		ExposureCap:  equity * r.cfg.ExposureCapPct / 100,
		OpenExposure: r.reg.Exposure(),
		Grade:        grade,
		Stats:        r.d.Ledger.Stats(grade),
	})
	if err != nil {
		return err
	}

	fill, err := r.buy(ctx, cand.Instrument, sizing.Notional)
	if err != nil {
		if errors.Is(err, broker.ErrOrderRejected) || broker.Resendable(err) {
			r.notify(ctx, notify.Warnf("buy failed", "%s %s: %v", cand.Instrument, grade, err))
		} else {
			r.notify(ctx, notify.Alertf("buy outcome unknown", "%s %s notional %.0f: %v\ncheck the exchange for an untracked holding",
				cand.Instrument, grade, sizing.Notional, err))
		}
		return err
	}

	// the watcher measures hold time on the same clock
	opened := r.d.Now()
	posID, err := r.d.IDs.NewAt(opened)
	if err != nil {
		posID = fill.OrderID
	}
	pos := position.Position{
		ID:            posID,
		Instrument:    cand.Instrument,
		EntryPrice:    fill.Price,
		Quantity:      fill.Quantity,
		Notional:      fill.Notional,
		EntryFee:      fill.Fee,
		Grade:         grade,
		Config:        gc,
		OpenedAt:      opened,
		VolatilityPct: volatility(cand),
		State:         position.StateOpen,
	}
	e, err := r.reg.Add(position.NewMachine(pos, r.strategy.Exit))
	if err != nil {
		return err
	}
	r.d.Metrics.SetOpenPositions(r.reg.Len())

	r.log.Info("position opened",
		zap.String("id", pos.ID),
		zap.String("instrument", pos.Instrument),
		zap.Stringer("grade", grade),
		zap.Float64("score", cand.Result.Score),
		zap.Float64("price", pos.EntryPrice),
		zap.Float64("notional", pos.Notional),
		zap.String("bound_by", sizing.Limit))
	r.notify(ctx, notify.Infof("entry", "%s %s score %.1f\n%.0f @ %.6g (bound by %s)",
		pos.Instrument, grade, cand.Result.Score, pos.Notional, pos.EntryPrice, sizing.Limit))

	r.wg.Add(1)
	go r.watch(ctx, e)
	return nil
}

// volatility is the Bollinger width of the shortest timeframe in the snapshot.
func volatility(c *scanner.Candidate) float64 {
	tfs := make([]market.Timeframe, 0, len(c.Snapshot.Frames))
	for tf := range c.Snapshot.Frames {
		tfs = append(tfs, tf)
	}
	short, ok := market.Shortest(tfs)
	if !ok {
		return 0
	}
	return c.Snapshot.Frames[short].BBWidthPct
}

// buy re-sends with a growing delay only while the exchange answers that the
// order was never accepted. Any other failure may hide a fill, so it is final.
func (r *Runner) buy(ctx context.Context, instr string, notional float64) (broker.Fill, error) {
	var err error
	for attempt := 1; attempt <= r.cfg.BuyAttempts; attempt++ {
		var f broker.Fill
		f, err = r.d.Orders.BuyMarket(ctx, instr, notional)
		r.d.Metrics.IncOrder(string(broker.Buy), err)
		if err == nil {
			if f.Quantity <= 0 || f.Price <= 0 {
				return f, fmt.Errorf("buy %s: empty fill: %w", instr, broker.ErrOrderRejected)
			}
			return f, nil
		}
		if !broker.Resendable(err) || attempt == r.cfg.BuyAttempts {
			break
		}
		r.log.Warn("buy failed, retrying", zap.String("instrument", instr), zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, r.cfg.BuyBackoff*time.Duration(attempt)) {
			return broker.Fill{}, ctx.Err()
		}
	}
	return broker.Fill{}, fmt.Errorf("buy %s: %w", instr, err)
}

// sell keeps trying until it succeeds, SellAttempts is spent or SellDeadline passes.
func (r *Runner) sell(ctx context.Context, instr string, qty float64) (broker.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SellDeadline)
	defer cancel()

	var err error
	for attempt := 1; attempt <= r.cfg.SellAttempts; attempt++ {
		var f broker.Fill
		f, err = r.d.Orders.SellMarket(ctx, instr, qty)
		r.d.Metrics.IncOrder(string(broker.Sell), err)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil || attempt == r.cfg.SellAttempts {
			break
		}
		r.log.Warn("sell failed, retrying", zap.String("instrument", instr), zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, r.cfg.SellBackoff) {
			break
		}
	}
	return broker.Fill{}, fmt.Errorf("sell %s: %w", instr, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Runner) notify(ctx context.Context, m notify.Message) {
	if err := r.d.Notifier.Notify(context.WithoutCancel(ctx), m); err != nil {
		r.log.Warn("notify", zap.String("title", m.Title), zap.Error(err))
	}
}
