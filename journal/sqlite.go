package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Instrument, t.Grade, t.Quantity, t.EntryPrice, t.ExitPrice, t.Notional,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPL, t.ProfitPct, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (`+equityColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Equity, e.FreeCapital, e.OpenExposure, e.DrawdownPct,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
