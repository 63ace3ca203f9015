package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rustyeddy/gradebot/broker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type account struct {
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	Locked      decimal.Decimal `json:"locked"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

type orderRequest struct {
	Market     string `json:"market"`
	Side       string `json:"side"`
	OrdType    string `json:"ord_type"`
	Price      string `json:"price,omitempty"`
	Volume     string `json:"volume,omitempty"`
	Identifier string `json:"identifier"`
}

type orderResponse struct {
	UUID           string          `json:"uuid"`
	Identifier     string          `json:"identifier"`
	State          string          `json:"state"`
	Market         string          `json:"market"`
	ExecutedVolume decimal.Decimal `json:"executed_volume"`
	ExecutedFunds  decimal.Decimal `json:"executed_funds"`
	PaidFee        decimal.Decimal `json:"paid_fee"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (o orderResponse) done() bool { return o.State == "done" || o.State == "cancel" }

// Account values holdings at their average buy price.
func (c *Client) Account(ctx context.Context) (broker.Account, error) {
	r, err := c.request(ctx, true)
	if err != nil {
		return broker.Account{}, err
	}
	const path = "/v1/accounts"
	resp, err := c.signed(r, http.MethodGet, path, nil).Get(path)
	if err != nil {
		return broker.Account{}, err
	}
	if err := check(resp, "accounts"); err != nil {
		return broker.Account{}, err
	}
	var rows []account
	if err := sonic.Unmarshal(resp.Body(), &rows); err != nil {
		return broker.Account{}, fmt.Errorf("decode accounts: %w", err)
	}

	acct := broker.Account{Currency: c.cfg.Quote}
	equity := decimal.Zero
	for _, a := range rows {
		total := a.Balance.Add(a.Locked)
		if a.Currency == c.cfg.Quote {
			acct.Free = a.Balance.InexactFloat64()
			equity = equity.Add(total)
			continue
		}
		equity = equity.Add(total.Mul(a.AvgBuyPrice))
	}
	acct.Equity = equity.InexactFloat64()
	return acct, nil
}

// BuyMarket spends notional quote currency on instr.
func (c *Client) BuyMarket(ctx context.Context, instr string, notional float64) (broker.Fill, error) {
	price := decimal.NewFromFloat(notional).Truncate(0)
	if !price.IsPositive() {
		return broker.Fill{}, fmt.Errorf("buy %s: notional %v: %w", instr, notional, broker.ErrOrderRejected)
	}
	return c.place(ctx, orderRequest{
		Market:  instr,
		Side:    "bid",
		OrdType: "price",
		Price:   price.String(),
	}, broker.Buy)
}

// SellMarket sells quantity of instr, truncated to the exchange precision.
func (c *Client) SellMarket(ctx context.Context, instr string, quantity float64) (broker.Fill, error) {
	vol := decimal.NewFromFloat(quantity).Truncate(c.cfg.QuantityDecimals)
	if !vol.IsPositive() {
		return broker.Fill{}, fmt.Errorf("sell %s: quantity %v: %w", instr, quantity, broker.ErrOrderRejected)
	}
	return c.place(ctx, orderRequest{
		Market:  instr,
		Side:    "ask",
		OrdType: "market",
		Volume:  vol.String(),
	}, broker.Sell)
}

func (c *Client) place(ctx context.Context, req orderRequest, side broker.Side) (broker.Fill, error) {
	req.Identifier = uuid.NewString()
	body, err := sonic.Marshal(req)
	if err != nil {
		return broker.Fill{}, err
	}

	r, err := c.request(ctx, true)
	if err != nil {
		return broker.Fill{}, err
	}
	const path = "/v1/orders"
	resp, err := c.signed(r, http.MethodPost, path, body).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("place %s %s: %w", side, req.Market, err)
	}
	if err := check(resp, "order"); err != nil {
		if errors.Is(err, broker.ErrRateLimited) {
			return broker.Fill{}, err
		}
		if resp.StatusCode()/100 == 4 {
			return broker.Fill{}, fmt.Errorf("%w: %w", broker.ErrOrderRejected, err)
		}
		return broker.Fill{}, err
	}

	var o orderResponse
	if err := sonic.Unmarshal(resp.Body(), &o); err != nil {
		return broker.Fill{}, fmt.Errorf("decode order: %w", err)
	}
	if !o.done() {
		if o, err = c.awaitDone(ctx, o); err != nil {
			return broker.Fill{}, err
		}
	}
	return c.toFill(o, req, side)
}

// awaitDone polls the order until it settles or OrderPoll elapses.
func (c *Client) awaitDone(ctx context.Context, o orderResponse) (orderResponse, error) {
	deadline := c.now().Add(c.cfg.OrderPoll)
	for !o.done() {
		if c.now().After(deadline) {
			return o, fmt.Errorf("order %s still %s: %w", o.UUID, o.State, broker.ErrOrderRejected)
		}
		select {
		case <-ctx.Done():
			return o, ctx.Err()
		case <-time.After(c.cfg.OrderPollWait):
		}

		r, err := c.request(ctx, true)
		if err != nil {
			return o, err
		}
		const path = "/v1/order"
		resp, err := c.signed(r, http.MethodGet, path, nil).SetQueryParam("uuid", o.UUID).Get(path)
		if err != nil {
			c.log.Warn("poll order", zap.String("uuid", o.UUID), zap.Error(err))
			continue
		}
		if err := check(resp, "order status"); err != nil {
			c.log.Warn("poll order", zap.String("uuid", o.UUID), zap.Error(err))
			continue
		}
		if err := sonic.Unmarshal(resp.Body(), &o); err != nil {
			return o, fmt.Errorf("decode order: %w", err)
		}
	}
	return o, nil
}

func (c *Client) toFill(o orderResponse, req orderRequest, side broker.Side) (broker.Fill, error) {
	if !o.ExecutedVolume.IsPositive() {
		return broker.Fill{}, fmt.Errorf("order %s %s filled nothing: %w", o.UUID, o.State, broker.ErrOrderRejected)
	}
	at := o.CreatedAt
	if at.IsZero() {
		at = c.now()
	}
	return broker.Fill{
		OrderID:       o.UUID,
		ClientOrderID: req.Identifier,
		Instrument:    req.Market,
		Side:          side,
		Quantity:      o.ExecutedVolume.InexactFloat64(),
		Price:         o.ExecutedFunds.Div(o.ExecutedVolume).InexactFloat64(),
		Notional:      o.ExecutedFunds.InexactFloat64(),
		Fee:           o.PaidFee.InexactFloat64(),
		Time:          at.UTC(),
	}, nil
}
