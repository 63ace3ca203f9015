// Package app wires the trading bot together with fx.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/gradebot/broker"
	"github.com/rustyeddy/gradebot/broker/paper"
	"github.com/rustyeddy/gradebot/broker/rest"
	"github.com/rustyeddy/gradebot/broker/stream"
	"github.com/rustyeddy/gradebot/config"
	"github.com/rustyeddy/gradebot/journal"
	"github.com/rustyeddy/gradebot/ledger"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/metrics"
	"github.com/rustyeddy/gradebot/notify"
	"github.com/rustyeddy/gradebot/pkg/id"
	"github.com/rustyeddy/gradebot/ratelimit"
	"github.com/rustyeddy/gradebot/risk"
	"github.com/rustyeddy/gradebot/runner"
	"github.com/rustyeddy/gradebot/scanner"
	"github.com/rustyeddy/gradebot/scoring"
	"github.com/rustyeddy/gradebot/snapshot"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module builds the full application graph for cfg.
func Module(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			metrics.New,
			market.NewPriceStore,
			newLimiter,
			newRESTClient,
			newExchange,
			newScanner,
			newNotifier,
			newJournal,
			newLedger,
			newMetricsServer,
			newRunner,
		),
		fx.Invoke(
			registerStream,
			registerRunner,
		),
	)
}

func newLimiter(cfg *config.Config, m *metrics.Metrics) *ratelimit.Limiter {
	l := ratelimit.New(cfg.RateLimit)
	l.Observe(m.ObserveLimiterWait)
	return l
}

func newRESTClient(cfg *config.Config, l *ratelimit.Limiter, log *zap.Logger) *rest.Client {
	return rest.New(cfg.Exchange, l, log.Named("rest"))
}

type exchange struct {
	market.DataSource
	broker.Orders
	broker.Balance
}

// newExchange serves market data from the REST client, preferring streamed
// prices when a stream is configured. Orders go to the exchange in live
// mode and to the paper wallet otherwise; paper fills are counted in m.
func newExchange(cfg *config.Config, c *rest.Client, store *market.PriceStore, m *metrics.Metrics) broker.Exchange {
	var data market.DataSource = c
	if cfg.Stream.URL != "" {
		data = stream.NewSource(c, store, cfg.Stream.MaxAge)
	}
	if cfg.Mode == config.ModePaper {
		ex := paper.New(cfg.Paper, data)
		ex.SetFillListener(paper.FillFunc(func(f broker.Fill) {
			m.ObservePaperFill(string(f.Side), f.Fee)
		}))
		return ex
	}
	return exchange{DataSource: data, Orders: c, Balance: c}
}

func newScanner(cfg *config.Config, ex broker.Exchange, log *zap.Logger) *scanner.Scanner {
	b := snapshot.NewBuilder(ex, cfg.Snapshot, log.Named("snapshot"))
	s := scoring.NewScorer(cfg.Scoring)
	return scanner.New(cfg.Scanner, ex, b, s, log.Named("scanner"))
}

func newNotifier(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	sinks := notify.Multi{notify.NewLog(log)}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	a := notify.NewAsync(sinks, cfg.Notify.QueueSize, log)
	lc.Append(fx.StopHook(a.Close))
	return a, nil
}

func newJournal(lc fx.Lifecycle, cfg *config.Config) (journal.Journal, error) {
	j, err := OpenJournal(context.Background(), cfg.Journal)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(j.Close))
	return j, nil
}

// OpenJournal opens the journal backend named by jc.Type.
func OpenJournal(ctx context.Context, jc config.JournalConfig) (journal.Journal, error) {
	var (
		j   journal.Journal
		err error
	)
	switch jc.Type {
	case "sqlite":
		if err = ensureDir(jc.DBPath); err == nil {
			j, err = journal.NewSQLite(jc.DBPath)
		}
	case "csv":
		if err = ensureDir(jc.TradesFile, jc.EquityFile); err == nil {
			j, err = journal.NewCSV(jc.TradesFile, jc.EquityFile)
		}
	case "postgres":
		j, err = journal.NewPostgres(ctx, jc.DSN, 0)
	default:
		return nil, fmt.Errorf("%w: journal type %q", config.ErrInvalid, jc.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s journal: %w", jc.Type, err)
	}
	return j, nil
}

func ensureDir(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// newLedger loads the persisted ledger, rebuilding it from the account
// equity when it is missing or corrupt.
func newLedger(cfg *config.Config, ex broker.Exchange, n notify.Notifier, log *zap.Logger) (*ledger.Ledger, error) {
	ctx := context.Background()
	store := ledger.NewFileStore(cfg.Ledger.Path, log.Named("ledger"))
	balance := func() (float64, error) {
		acct, err := ex.Account(ctx)
		if err != nil {
			return 0, err
		}
		return acct.Equity, nil
	}

	l, reinit, err := ledger.Open(store, balance, cfg.Risk, time.Now(), log.Named("ledger"))
	if err != nil {
		return nil, err
	}
	if reinit {
		st := l.Snapshot()
		log.Warn("ledger reinitialized", zap.String("path", store.Path()), zap.Float64("initial", st.Initial))
		_ = n.Notify(ctx, notify.Alertf("ledger reinitialized", "%s started over from balance %.0f", store.Path(), st.Initial))
	}
	return l, nil
}

func newMetricsServer(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *metrics.Server {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	s := metrics.NewServer(cfg.Metrics.Addr, m, log.Named("metrics"))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  s.Shutdown,
	})
	return s
}

type runnerParams struct {
	fx.In

	Config   *config.Config
	Exchange broker.Exchange
	Scanner  *scanner.Scanner
	Ledger   *ledger.Ledger
	Journal  journal.Journal
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func newRunner(p runnerParams) (*runner.Runner, error) {
	cfg := p.Config
	return runner.New(cfg.Runner, runner.Strategy{
		Universe:         cfg.Universe,
		Grades:           cfg.Grades,
		Exit:             cfg.Exit,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
	}, runner.Deps{
		Market:   p.Exchange,
		Orders:   p.Exchange,
		Balance:  p.Exchange,
		Scanner:  p.Scanner,
		Sizer:    risk.NewSizer(cfg.Sizing),
		Ledger:   p.Ledger,
		Journal:  p.Journal,
		Notifier: p.Notifier,
		Metrics:  p.Metrics,
		IDs:      id.NewGenerator(),
		Log:      p.Log,
	})
}

func registerStream(lc fx.Lifecycle, cfg *config.Config, store *market.PriceStore, log *zap.Logger) {
	if cfg.Stream.URL == "" {
		return
	}
	s := stream.New(cfg.Stream, store, log.Named("stream"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := s.Run(ctx, cfg.Universe); err != nil {
					log.Error("price stream stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
}

func registerRunner(lc fx.Lifecycle, r *runner.Runner, srv *metrics.Server, n notify.Notifier, cfg *config.Config, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() { done <- r.Run(ctx) }()
			if srv != nil {
				srv.SetReady(true)
			}
			_ = n.Notify(ctx, notify.Infof("gradebot started", "mode %s, %d instruments", cfg.Mode, len(cfg.Universe)))
			return nil
		},
		OnStop: func(stop context.Context) error {
			if srv != nil {
				srv.SetReady(false)
			}
			cancel()
			select {
			case err := <-done:
				if err != nil {
					log.Error("runner stopped with error", zap.Error(err))
				}
				_ = n.Notify(stop, notify.Infof("gradebot stopped", "open positions: %d", r.Registry().Len()))
				return err
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
}
