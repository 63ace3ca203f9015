package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres journals into a shared database through a connection pool.
type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgres(ctx context.Context, dsn string, timeout time.Duration) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	j := &Postgres{pool: pool, timeout: timeout}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return j, nil
}

func (j *Postgres) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), j.timeout)
}

func (j *Postgres) RecordTrade(t TradeRecord) error {
	ctx, cancel := j.ctx()
	defer cancel()
	_, err := j.pool.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (trade_id) DO NOTHING`,
		t.TradeID, t.Instrument, t.Grade, t.Quantity, t.EntryPrice, t.ExitPrice, t.Notional,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPL, t.ProfitPct, t.Reason,
	)
	return err
}

func (j *Postgres) RecordEquity(e EquitySnapshot) error {
	ctx, cancel := j.ctx()
	defer cancel()
	_, err := j.pool.Exec(ctx, `
		INSERT INTO equity (`+equityColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Time.UTC(), e.Equity, e.FreeCapital, e.OpenExposure, e.DrawdownPct,
	)
	return err
}

func (j *Postgres) GetTrade(tradeID string) (TradeRecord, error) {
	ctx, cancel := j.ctx()
	defer cancel()
	row := j.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = $1`, tradeID)
	rec, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
	}
	return rec, err
}

func (j *Postgres) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	ctx, cancel := j.ctx()
	defer cancel()
	rows, err := j.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= $1 AND close_time < $2
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *Postgres) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	ctx, cancel := j.ctx()
	defer cancel()
	rows, err := j.pool.Query(ctx, `
		SELECT `+equityColumns+`
		FROM equity
		WHERE time >= $1 AND time < $2
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		e, err := scanEquity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}
