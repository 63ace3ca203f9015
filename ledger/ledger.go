package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/gradebot/risk"
	"github.com/rustyeddy/gradebot/scoring"
	"go.uber.org/zap"
)

// Ledger serializes every read-modify-write of the risk counters behind one mutex.
type Ledger struct {
	mu     sync.Mutex
	st     State
	store  Store
	policy risk.Policy
	log    *zap.Logger
}

func New(st State, store Store, policy risk.Policy, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{st: st.clone(), store: store, policy: policy, log: log}
}

// Open loads the persisted ledger. A missing or corrupt ledger is rebuilt from
// balance and saved; reinit reports that this happened.
func Open(store Store, balance func() (float64, error), policy risk.Policy, now time.Time, log *zap.Logger) (l *Ledger, reinit bool, err error) {
	st, err := store.Load()
	switch {
	case err == nil:
		return New(st, store, policy, log), false, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
	default:
		return nil, false, err
	}

	cause := err
	bal, err := balance()
	if err != nil {
		return nil, false, fmt.Errorf("reinitialize ledger after %v: %w", cause, err)
	}
	if bal <= 0 {
		return nil, false, fmt.Errorf("reinitialize ledger after %v: balance %.2f", cause, bal)
	}

	l = New(NewState(bal, now), store, policy, log)
	if err := store.Save(l.st); err != nil {
		return nil, false, fmt.Errorf("save new ledger: %w", err)
	}
	return l, true, nil
}

// Decision evaluates the entry circuit breakers at now.
func (l *Ledger) Decision(now time.Time) risk.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return risk.Evaluate(l.policy,
		risk.AccountSnapshot{Initial: l.st.Initial, Equity: l.st.CurrentAsset},
		risk.PnLSnapshot{
			DayLoss:           l.st.dayLoss(now),
			TotalProfit:       l.st.TotalProfit,
			ConsecutiveLosses: l.st.ConsecutiveLoss,
		})
}

// CanEnter reports whether a new position may be opened and, if not, why.
func (l *Ledger) CanEnter(now time.Time) (bool, string) {
	d := l.Decision(now)
	return d.Allowed, d.Reason()
}

// Record books a closed trade and persists the result. A pnl of zero counts
// as a loss. The in-memory counters are updated even if saving fails.
func (l *Ledger) Record(pnl, pnlPct float64, g scoring.Grade, at time.Time) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &l.st
	// Dates compare as strings. A trade settled on a day before LastTradeDate
	// counts toward the totals and the streak but never reopens that day.
	day := at.Format(dateLayout)
	if day > s.LastTradeDate {
		s.DailyLoss, s.DailyProfit = 0, 0
		s.LastTradeDate = day
	}
	today := day == s.LastTradeDate

	s.TotalTrades++
	s.TotalProfit += pnl
	s.CurrentAsset += pnl
	s.PeakAsset = max(s.PeakAsset, s.CurrentAsset)

	gs := s.GradeStats[g.String()]
	gs.Trades++
	gs.Profit += pnl
	if pnl > 0 {
		s.WinTrades++
		if today {
			s.DailyProfit += pnl
		}
		s.ConsecutiveLoss = 0
		gs.Wins++
		gs.WinPctSum += pnlPct
	} else {
		if today {
			s.DailyLoss -= pnl
		}
		s.ConsecutiveLoss++
		gs.LossPctSum += pnlPct
	}
	if s.GradeStats == nil {
		s.GradeStats = map[string]GradeStat{}
	}
	s.GradeStats[g.String()] = gs

	out := s.clone()
	if err := l.store.Save(out); err != nil {
		l.log.Error("persist ledger", zap.Error(err))
		return out, fmt.Errorf("persist ledger: %w", err)
	}
	return out, nil
}

// Flush persists the current counters.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Save(l.st.clone())
}

// Snapshot returns a copy of the counters.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.clone()
}

func (l *Ledger) Equity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.CurrentAsset
}

// Stats returns the realized record of grade g for position sizing.
func (l *Ledger) Stats(g scoring.Grade) risk.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.GradeStats[g.String()].Stats()
}
