// Package metrics exposes Prometheus collectors for the trading loop and a
// small HTTP server with /metrics, /healthz and /readyz.
//
//   - gradebot_scans_total                 scans completed
//   - gradebot_candidates_total{grade}     best candidate per scan by grade
//   - gradebot_entry_blocked_total{reason} scans skipped by the risk gate
//   - gradebot_orders_total{side,result}   orders placed (ok|error)
//   - gradebot_exits_total{reason}         closed positions by exit reason
//   - gradebot_trades_total{result}        closed trades (win|loss)
//   - gradebot_equity                      ledger equity after each close
//   - gradebot_open_positions              positions being watched
//   - gradebot_ratelimit_wait_seconds      time spent waiting on the limiter
//   - gradebot_paper_fills_total{side}     simulated fills in paper mode
//   - gradebot_paper_fees_total            simulated fees charged in paper mode
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	reg prometheus.Gatherer

	scans         prometheus.Counter
	candidates    *prometheus.CounterVec
	entryBlocked  *prometheus.CounterVec
	orders        *prometheus.CounterVec
	exits         *prometheus.CounterVec
	trades        *prometheus.CounterVec
	equity        prometheus.Gauge
	openPositions prometheus.Gauge
	limiterWait   prometheus.Histogram
	paperFills    *prometheus.CounterVec
	paperFees     prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradebot_scans_total",
			Help: "Scans completed",
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebot_candidates_total",
			Help: "Best candidate per scan by grade",
		}, []string{"grade"}),
		entryBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebot_entry_blocked_total",
			Help: "Scans skipped because entry was not allowed",
		}, []string{"reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebot_orders_total",
			Help: "Orders placed by side and result",
		}, []string{"side", "result"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebot_exits_total",
			Help: "Closed positions by exit reason",
		}, []string{"reason"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebot_trades_total",
			Help: "Closed trades by result",
		}, []string{"result"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gradebot_equity",
			Help: "Ledger equity in quote currency",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gradebot_open_positions",
			Help: "Positions currently watched",
		}),
		limiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradebot_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		paperFills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebot_paper_fills_total",
			Help: "Simulated fills by side",
		}, []string{"side"}),
		paperFees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradebot_paper_fees_total",
			Help: "Simulated fees in quote currency",
		}),
	}
	reg.MustRegister(m.scans, m.candidates, m.entryBlocked, m.orders, m.exits,
		m.trades, m.equity, m.openPositions, m.limiterWait, m.paperFills, m.paperFees)
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Gatherer returns the registry backing m.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// Helpers are nil-safe so components can run without metrics.

func (m *Metrics) IncScans() {
	if m != nil {
		m.scans.Inc()
	}
}

func (m *Metrics) IncCandidate(grade string) {
	if m != nil {
		m.candidates.WithLabelValues(grade).Inc()
	}
}

func (m *Metrics) IncEntryBlocked(reason string) {
	if m != nil {
		m.entryBlocked.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncOrder(side string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.orders.WithLabelValues(side, result).Inc()
}

// ObserveExit counts a closed position by reason and outcome.
func (m *Metrics) ObserveExit(reason string, pnl float64) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(reason).Inc()
	if pnl > 0 {
		m.trades.WithLabelValues("win").Inc()
	} else {
		m.trades.WithLabelValues("loss").Inc()
	}
}

func (m *Metrics) SetEquity(v float64) {
	if m != nil {
		m.equity.Set(v)
	}
}

func (m *Metrics) SetOpenPositions(n int) {
	if m != nil {
		m.openPositions.Set(float64(n))
	}
}

// ObserveLimiterWait matches ratelimit.Observer.
func (m *Metrics) ObserveLimiterWait(d time.Duration) {
	if m != nil {
		m.limiterWait.Observe(d.Seconds())
	}
}

func (m *Metrics) ObservePaperFill(side string, fee float64) {
	if m == nil {
		return
	}
	m.paperFills.WithLabelValues(side).Inc()
	if fee > 0 {
		m.paperFees.Add(fee)
	}
}
