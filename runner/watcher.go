package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/gradebot/broker"
	"github.com/rustyeddy/gradebot/journal"
	"github.com/rustyeddy/gradebot/notify"
	"github.com/rustyeddy/gradebot/position"
	"go.uber.org/zap"
)

// watch polls the price of one position every PollInterval and evaluates
// ticks strictly in order until the position is closed or ctx is done.
func (r *Runner) watch(ctx context.Context, e *Entry) {
	defer r.wg.Done()

	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if r.Poll(ctx, e) {
				return
			}
		}
	}
}

// Poll evaluates one price tick for e and closes the position when the exit
// machine says so. It reports whether watching is over.
func (r *Runner) Poll(ctx context.Context, e *Entry) bool {
	pos := e.Machine.Position()
	tick, err := r.d.Market.GetPrice(ctx, pos.Instrument)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("price unavailable", zap.String("instrument", pos.Instrument), zap.Error(err))
		}
		return false
	}
	// Hold time is measured on the local clock. A lagging exchange timestamp
	// must not hold a position past MaxHold.
	at := r.d.Now()
	r.log.Debug("tick",
		zap.String("instrument", pos.Instrument),
		zap.Float64("price", tick.Price),
		zap.Time("exchange_time", tick.Time))

	d, err := e.Machine.Evaluate(position.Tick{Price: tick.Price, Time: at})
	if err != nil {
		if errors.Is(err, position.ErrStaleTick) {
			r.log.Debug("stale tick", zap.String("instrument", pos.Instrument), zap.Error(err))
		} else {
			r.log.Warn("evaluate", zap.String("instrument", pos.Instrument), zap.Error(err))
		}
		return false
	}
	if !d.Close {
		return false
	}
	r.close(ctx, e, d)
	return true
}

// close sells a position the machine already closed and books the result.
// The sell runs to completion even when ctx is cancelled mid-way.
func (r *Runner) close(ctx context.Context, e *Entry, d position.Decision) {
	pos := e.Machine.Position()
	r.log.Info("exit signal",
		zap.String("instrument", pos.Instrument),
		zap.Stringer("reason", d.Reason),
		zap.Float64("profit_pct", d.ProfitPct),
		zap.Float64("stop_pct", d.StopPct))

	fill, err := r.sell(context.WithoutCancel(ctx), pos.Instrument, pos.Quantity)
	if err != nil {
		r.reg.MarkStuck(pos.Instrument)
		r.log.Error("exit order failed", zap.String("instrument", pos.Instrument), zap.Error(err))
		r.notify(ctx, notify.Alertf("sell failed", "%s %s qty %.8g: %v\nposition left open, retrying every scan cycle",
			pos.Instrument, d.Reason, pos.Quantity, err))
		return
	}
	e.Machine.Settle(fill.Price)
	r.book(ctx, e.Machine.Position(), fill)
}

// retryStuck re-sends the exit of every position whose sell failed earlier.
// Their watchers are gone, so the scan loop is the only caller.
func (r *Runner) retryStuck(ctx context.Context) {
	for _, e := range r.reg.Stuck() {
		pos := e.Machine.Position()
		fill, err := r.sell(ctx, pos.Instrument, pos.Quantity)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Warn("stuck exit still failing", zap.String("instrument", pos.Instrument), zap.Error(err))
			}
			continue
		}
		r.log.Info("stuck exit filled", zap.String("instrument", pos.Instrument), zap.Float64("price", fill.Price))
		e.Machine.Settle(fill.Price)
		r.book(ctx, e.Machine.Position(), fill)
	}
}

// book records a settled exit in the ledger, journal and metrics.
func (r *Runner) book(ctx context.Context, pos position.Position, fill broker.Fill) {
	r.reg.Remove(pos.Instrument)
	r.d.Metrics.SetOpenPositions(r.reg.Len())

	pnl := fill.Notional - fill.Fee - pos.Notional - pos.EntryFee
	pnlPct := 0.0
	if pos.Notional > 0 {
		pnlPct = pnl / pos.Notional * 100
	}
	closed := r.d.Now()

	st, err := r.d.Ledger.Record(pnl, pnlPct, pos.Grade, closed)
	if err != nil {
		r.log.Error("ledger", zap.Error(err))
		r.notify(ctx, notify.Alertf("ledger not saved", "%v", err))
	}

	rec := journal.TradeRecord{
		TradeID:    pos.ID,
		Instrument: pos.Instrument,
		Grade:      pos.Grade.String(),
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  pos.ExitPrice,
		Notional:   pos.Notional,
		OpenTime:   pos.OpenedAt,
		CloseTime:  closed,
		RealizedPL: pnl,
		ProfitPct:  pnlPct,
		Reason:     pos.ExitReason.String(),
	}
	if err := r.d.Journal.RecordTrade(rec); err != nil {
		r.log.Error("journal trade", zap.String("id", pos.ID), zap.Error(err))
	}

	snap := journal.EquitySnapshot{
		Time:         closed,
		Equity:       st.CurrentAsset,
		OpenExposure: r.reg.Exposure(),
		DrawdownPct:  st.DrawdownPct(),
	}
	if acct, err := r.d.Balance.Account(context.WithoutCancel(ctx)); err == nil {
		snap.FreeCapital = acct.Free
	}
	if err := r.d.Journal.RecordEquity(snap); err != nil {
		r.log.Error("journal equity", zap.Error(err))
	}

	r.d.Metrics.ObserveExit(pos.ExitReason.String(), pnl)
	r.d.Metrics.SetEquity(st.CurrentAsset)

	r.log.Info("position closed",
		zap.String("id", pos.ID),
		zap.String("instrument", pos.Instrument),
		zap.Stringer("reason", pos.ExitReason),
		zap.Float64("pnl", pnl),
		zap.Float64("pnl_pct", pnlPct),
		zap.Float64("equity", st.CurrentAsset))
	r.notify(ctx, notify.Infof("exit", "%s %s %s\npnl %.0f (%.2f%%) equity %.0f",
		pos.Instrument, pos.Grade, pos.ExitReason, pnl, pnlPct, st.CurrentAsset))
}

// shutdown waits for the watchers, closes every remaining position on a best
// effort basis and flushes the ledger.
func (r *Runner) shutdown() error {
	r.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()

	for _, e := range r.reg.entriesCopy() {
		pos := e.Machine.Position()
		if !pos.Closed() {
			tick, err := r.d.Market.GetPrice(ctx, pos.Instrument)
			price := pos.EntryPrice
			at := r.d.Now()
			if err == nil {
				price = tick.Price
			} else {
				r.log.Warn("shutdown price", zap.String("instrument", pos.Instrument), zap.Error(err))
			}
			e.Machine.ForceClose(position.Tick{Price: price, Time: at}, position.ExitShutdown)
		}

		fill, err := r.sell(ctx, pos.Instrument, pos.Quantity)
		if err != nil {
			r.log.Error("shutdown close failed", zap.String("instrument", pos.Instrument), zap.Error(err))
			r.notify(ctx, notify.Alertf("shutdown close failed", "%s qty %.8g: %v", pos.Instrument, pos.Quantity, err))
			continue
		}
		e.Machine.Settle(fill.Price)
		r.book(ctx, e.Machine.Position(), fill)
	}

	err := r.d.Ledger.Flush()
	if err != nil {
		r.log.Error("flush ledger", zap.Error(err))
	}
	r.log.Info("runner stopped", zap.Int("still_open", r.reg.Len()))
	return err
}
