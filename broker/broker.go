// Package broker defines the order and account collaborators of the trading loop.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/gradebot/market"
)

var (
	// ErrRateLimited is returned when the exchange refused a call for rate reasons.
	ErrRateLimited = errors.New("rate limited")
	// ErrOrderRejected is returned when the exchange refused or failed to fill an order.
	ErrOrderRejected = errors.New("order rejected")
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Fill is the executed result of a market order.
type Fill struct {
	OrderID       string
	ClientOrderID string
	Instrument    string
	Side          Side
	Quantity      float64
	Price         float64
	Notional      float64
	Fee           float64
	Time          time.Time
}

type Account struct {
	Currency string
	// Free is spendable quote currency.
	Free float64
	// Equity is Free plus the value of every holding.
	Equity float64
}

// Orders places market orders. Buys are sized by quote notional, sells by quantity.
type Orders interface {
	BuyMarket(ctx context.Context, instrument string, notional float64) (Fill, error)
	SellMarket(ctx context.Context, instrument string, quantity float64) (Fill, error)
}

type Balance interface {
	Account(ctx context.Context) (Account, error)
}

// Exchange is everything the trading loop needs from a venue.
type Exchange interface {
	market.DataSource
	Orders
	Balance
}

// Resendable reports whether err proves the order never reached the book, so
// sending it again cannot fill twice. Transport failures and 5xx answers are
// ambiguous: the exchange may have filled the order before the reply was lost.
func Resendable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
