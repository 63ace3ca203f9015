package rest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rustyeddy/gradebot/market"
	"github.com/shopspring/decimal"
)

type candle struct {
	Time   int64           `json:"time"` // unix ms, bar open
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type ticker struct {
	Market    string          `json:"market"`
	Price     decimal.Decimal `json:"trade_price"`
	Timestamp int64           `json:"timestamp"`
}

// GetBars returns the newest count bars oldest first.
func (c *Client) GetBars(ctx context.Context, instr string, tf market.Timeframe, count int) ([]market.Bar, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	var out []market.Bar
	err := c.dataRetry(ctx, "candles "+instr+" "+tf.String(), func() error {
		r, err := c.request(ctx, false)
		if err != nil {
			return err
		}
		resp, err := r.SetQueryParams(map[string]string{
			"market":   instr,
			"interval": tf.String(),
			"count":    strconv.Itoa(count),
		}).Get("/v1/candles")
		if err != nil {
			return err
		}
		if err := check(resp, "candles"); err != nil {
			return err
		}

		var rows []candle
		if err := sonic.Unmarshal(resp.Body(), &rows); err != nil {
			return fmt.Errorf("decode candles: %w", err)
		}
		out = toBars(rows)
		return nil
	})
	return out, err
}

func toBars(rows []candle) []market.Bar {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
	bars := make([]market.Bar, len(rows))
	for i, r := range rows {
		bars[i] = market.Bar{
			Open:   r.Open.InexactFloat64(),
			High:   r.High.InexactFloat64(),
			Low:    r.Low.InexactFloat64(),
			Close:  r.Close.InexactFloat64(),
			Volume: r.Volume.InexactFloat64(),
			Time:   time.UnixMilli(r.Time).UTC(),
		}
	}
	return bars
}

func (c *Client) GetPrice(ctx context.Context, instr string) (market.Tick, error) {
	var tick market.Tick
	err := c.dataRetry(ctx, "ticker "+instr, func() error {
		r, err := c.request(ctx, false)
		if err != nil {
			return err
		}
		resp, err := r.SetQueryParam("market", instr).Get("/v1/ticker")
		if err != nil {
			return err
		}
		if err := check(resp, "ticker"); err != nil {
			return err
		}
		var t ticker
		if err := sonic.Unmarshal(resp.Body(), &t); err != nil {
			return fmt.Errorf("decode ticker: %w", err)
		}
		if !t.Price.IsPositive() {
			return fmt.Errorf("ticker %s: non-positive price %s", instr, t.Price)
		}
		tick = market.Tick{Instrument: instr, Price: t.Price.InexactFloat64(), Time: time.UnixMilli(t.Timestamp).UTC()}
		return nil
	})
	return tick, err
}
