// Package paper is a dry-run exchange: market data comes from a real source,
// orders fill instantly at the last price against a simulated wallet.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/gradebot/broker"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/pkg/id"
)

type Config struct {
	Currency string  `yaml:"currency" json:"currency"`
	Balance  float64 `yaml:"balance" json:"balance"`
	// FeePct is charged on every fill, in percent of notional.
	FeePct float64 `yaml:"fee_pct" json:"fee_pct"`
}

func DefaultConfig() Config {
	return Config{Currency: "KRW", Balance: 1_000_000, FeePct: 0.05}
}

// FillListener is told about every fill after the exchange lock is released.
type FillListener interface {
	OnFill(f broker.Fill)
}

// FillFunc adapts a function to FillListener.
type FillFunc func(f broker.Fill)

func (fn FillFunc) OnFill(f broker.Fill) { fn(f) }

type holding struct {
	qty  float64
	cost float64
}

type Exchange struct {
	market.DataSource

	mu       sync.Mutex
	cfg      Config
	free     float64
	holdings map[string]*holding
	last     map[string]float64
	listener FillListener
}

func New(cfg Config, data market.DataSource) *Exchange {
	return &Exchange{
		DataSource: data,
		cfg:        cfg,
		free:       cfg.Balance,
		holdings:   make(map[string]*holding),
		last:       make(map[string]float64),
	}
}

func (e *Exchange) SetFillListener(l FillListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// GetPrice passes through to the data source and remembers the price for
// valuing holdings.
func (e *Exchange) GetPrice(ctx context.Context, instr string) (market.Tick, error) {
	t, err := e.DataSource.GetPrice(ctx, instr)
	if err != nil {
		return t, err
	}
	e.mu.Lock()
	e.last[instr] = t.Price
	e.mu.Unlock()
	return t, nil
}

// Account values holdings at the last seen price, or at cost before any.
func (e *Exchange) Account(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	equity := e.free
	for instr, h := range e.holdings {
		if p, ok := e.last[instr]; ok {
			equity += h.qty * p
			continue
		}
		equity += h.cost
	}
	return broker.Account{Currency: e.cfg.Currency, Free: e.free, Equity: equity}, nil
}

func (e *Exchange) BuyMarket(ctx context.Context, instr string, notional float64) (broker.Fill, error) {
	if notional <= 0 {
		return broker.Fill{}, fmt.Errorf("buy %s: notional %v: %w", instr, notional, broker.ErrOrderRejected)
	}
	t, err := e.GetPrice(ctx, instr)
	if err != nil {
		return broker.Fill{}, err
	}

	e.mu.Lock()
	fee := notional * e.cfg.FeePct / 100
	if notional+fee > e.free {
		e.mu.Unlock()
		return broker.Fill{}, fmt.Errorf("buy %s: need %.2f have %.2f: %w", instr, notional+fee, e.free, broker.ErrOrderRejected)
	}
	qty := notional / t.Price
	e.free -= notional + fee
	h := e.holdings[instr]
	if h == nil {
		h = &holding{}
		e.holdings[instr] = h
	}
	h.qty += qty
	h.cost += notional

	f := e.fill(instr, broker.Buy, qty, t, fee)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnFill(f)
	}
	return f, nil
}

func (e *Exchange) SellMarket(ctx context.Context, instr string, quantity float64) (broker.Fill, error) {
	if quantity <= 0 {
		return broker.Fill{}, fmt.Errorf("sell %s: quantity %v: %w", instr, quantity, broker.ErrOrderRejected)
	}
	t, err := e.GetPrice(ctx, instr)
	if err != nil {
		return broker.Fill{}, err
	}

	e.mu.Lock()
	h := e.holdings[instr]
	if h == nil || h.qty < quantity*(1-1e-9) {
		e.mu.Unlock()
		return broker.Fill{}, fmt.Errorf("sell %s: quantity %v exceeds holding: %w", instr, quantity, broker.ErrOrderRejected)
	}
	notional := quantity * t.Price
	fee := notional * e.cfg.FeePct / 100
	e.free += notional - fee

	share := min(quantity/h.qty, 1)
	h.cost -= h.cost * share
	h.qty -= quantity
	if h.qty <= 1e-12 {
		delete(e.holdings, instr)
	}

	f := e.fill(instr, broker.Sell, quantity, t, fee)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnFill(f)
	}
	return f, nil
}

func (e *Exchange) fill(instr string, side broker.Side, qty float64, t market.Tick, fee float64) broker.Fill {
	oid := id.New()
	return broker.Fill{
		OrderID:       oid,
		ClientOrderID: oid,
		Instrument:    instr,
		Side:          side,
		Quantity:      qty,
		Price:         t.Price,
		Notional:      qty * t.Price,
		Fee:           fee,
		Time:          t.Time,
	}
}

// Holding returns the simulated quantity held of instr.
func (e *Exchange) Holding(instr string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h := e.holdings[instr]; h != nil {
		return h.qty
	}
	return 0
}

var _ broker.Exchange = (*Exchange)(nil)
