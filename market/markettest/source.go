// Package markettest provides an in-memory market.DataSource for tests.
package markettest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/gradebot/market"
)

// Source serves canned bars and prices. Errors can be injected per instrument.
type Source struct {
	mu     sync.Mutex
	bars   map[string]map[market.Timeframe][]market.Bar
	prices map[string]float64
	fails  map[string]error
	calls  map[string]int
	Now    time.Time
}

func NewSource() *Source {
	return &Source{
		bars:   make(map[string]map[market.Timeframe][]market.Bar),
		prices: make(map[string]float64),
		fails:  make(map[string]error),
		calls:  make(map[string]int),
		Now:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *Source) SetBars(instr string, tf market.Timeframe, bars []market.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bars[instr] == nil {
		s.bars[instr] = make(map[market.Timeframe][]market.Bar)
	}
	s.bars[instr][tf] = bars
}

func (s *Source) SetPrice(instr string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[instr] = price
}

// Fail makes every call for instr return err until cleared with a nil err.
func (s *Source) Fail(instr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, instr)
		return
	}
	s.fails[instr] = err
}

// Calls returns how many GetBars calls were made for instr.
func (s *Source) Calls(instr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[instr]
}

func (s *Source) GetBars(ctx context.Context, instr string, tf market.Timeframe, count int) ([]market.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[instr]++
	if err := s.fails[instr]; err != nil {
		return nil, err
	}
	bars, ok := s.bars[instr][tf]
	if !ok {
		return nil, fmt.Errorf("no bars for %s %s: %w", instr, tf, market.ErrDataUnavailable)
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]market.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (s *Source) GetPrice(ctx context.Context, instr string) (market.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[instr]; err != nil {
		return market.Tick{}, err
	}
	p, ok := s.prices[instr]
	if !ok {
		return market.Tick{}, fmt.Errorf("no price for %s: %w", instr, market.ErrDataUnavailable)
	}
	return market.Tick{Instrument: instr, Price: p, Time: s.Now}, nil
}

// Series builds n bars of tf ending at end whose closes follow fn(i).
func Series(n int, tf market.Timeframe, end time.Time, fn func(i int) float64) []market.Bar {
	out := make([]market.Bar, n)
	step := tf.Duration()
	for i := 0; i < n; i++ {
		c := fn(i)
		out[i] = market.Bar{
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 100,
			Time:   end.Add(-time.Duration(n-1-i) * step),
		}
	}
	return out
}
