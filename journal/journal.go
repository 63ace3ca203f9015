// Package journal records closed trades and equity snapshots.
package journal

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a trade id is unknown.
var ErrNotFound = errors.New("trade not found")

type TradeRecord struct {
	TradeID    string
	Instrument string
	Grade      string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	Notional   float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	ProfitPct  float64
	Reason     string
}

type EquitySnapshot struct {
	Time         time.Time
	Equity       float64
	FreeCapital  float64
	OpenExposure float64
	DrawdownPct  float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Reader is implemented by journals that can be queried.
type Reader interface {
	GetTrade(tradeID string) (TradeRecord, error)
	ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error)
	ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error)
}

// Multi fans every record out to all journals and joins their errors.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEquity(e EquitySnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
