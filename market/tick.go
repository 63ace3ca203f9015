package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDataUnavailable is reported when bars or prices cannot be obtained after
// the data source exhausted its own retries.
var ErrDataUnavailable = errors.New("market data unavailable")

// Tick is the last traded price of an instrument.
type Tick struct {
	Instrument string
	Price      float64
	Time       time.Time
}

// PriceSource returns the current price of an instrument.
type PriceSource interface {
	GetPrice(ctx context.Context, instrument string) (Tick, error)
}

// BarSource returns the newest count closed bars for an instrument.
type BarSource interface {
	GetBars(ctx context.Context, instrument string, tf Timeframe, count int) ([]Bar, error)
}

// DataSource is the full market data collaborator.
type DataSource interface {
	BarSource
	PriceSource
}

// PriceStore keeps the latest tick per instrument. It is safe for concurrent use.
type PriceStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewPriceStore() *PriceStore {
	return &PriceStore{ticks: make(map[string]Tick)}
}

// Set stores t unless a newer tick for the same instrument is already held.
func (ps *PriceStore) Set(t Tick) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if cur, ok := ps.ticks[t.Instrument]; ok && t.Time.Before(cur.Time) {
		return
	}
	ps.ticks[t.Instrument] = t
}

func (ps *PriceStore) Get(instr string) (Tick, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	t, ok := ps.ticks[instr]
	if !ok {
		return Tick{}, fmt.Errorf("price for %s: %w", instr, ErrDataUnavailable)
	}
	return t, nil
}

// Fresh returns the stored tick only when it is no older than maxAge at now.
func (ps *PriceStore) Fresh(instr string, now time.Time, maxAge time.Duration) (Tick, bool) {
	t, err := ps.Get(instr)
	if err != nil || now.Sub(t.Time) > maxAge {
		return Tick{}, false
	}
	return t, true
}
