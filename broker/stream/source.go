package stream

import (
	"context"
	"time"

	"github.com/rustyeddy/gradebot/market"
)

// Source serves prices from the store while they are fresh and falls back
// to the wrapped source otherwise. Bars always come from the wrapped source.
type Source struct {
	market.DataSource
	store  *market.PriceStore
	maxAge time.Duration
	now    func() time.Time
}

func NewSource(fallback market.DataSource, store *market.PriceStore, maxAge time.Duration) *Source {
	return &Source{DataSource: fallback, store: store, maxAge: maxAge, now: time.Now}
}

func (s *Source) GetPrice(ctx context.Context, instr string) (market.Tick, error) {
	if t, ok := s.store.Fresh(instr, s.now(), s.maxAge); ok {
		return t, nil
	}
	t, err := s.DataSource.GetPrice(ctx, instr)
	if err != nil {
		return t, err
	}
	s.store.Set(t)
	return t, nil
}
