// Package ledger keeps the crash-safe capital and risk counters that gate new entries.
package ledger

import (
	"time"

	"github.com/rustyeddy/gradebot/risk"
)

const dateLayout = "2006-01-02"

// GradeStat is the realized record of one grade.
type GradeStat struct {
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	Profit     float64 `json:"profit"`
	WinPctSum  float64 `json:"win_pct_sum"`
	LossPctSum float64 `json:"loss_pct_sum"`
}

// Stats converts the record into sizing input.
func (g GradeStat) Stats() risk.Stats {
	s := risk.Stats{Trades: g.Trades, Wins: g.Wins}
	if g.Wins > 0 {
		s.AvgWinPct = g.WinPctSum / float64(g.Wins)
	}
	if losses := g.Trades - g.Wins; losses > 0 {
		s.AvgLossPct = g.LossPctSum / float64(losses)
	}
	return s
}

// State is the persisted ledger. Every field is required on disk.
type State struct {
	Initial         float64              `json:"initial"`
	CurrentAsset    float64              `json:"current_asset"`
	PeakAsset       float64              `json:"peak_asset"`
	DailyLoss       float64              `json:"daily_loss"`
	DailyProfit     float64              `json:"daily_profit"`
	ConsecutiveLoss int                  `json:"consecutive_loss"`
	LastTradeDate   string               `json:"last_trade_date"`
	TotalTrades     int                  `json:"total_trades"`
	WinTrades       int                  `json:"win_trades"`
	TotalProfit     float64              `json:"total_profit"`
	GradeStats      map[string]GradeStat `json:"grade_stats"`
}

var requiredFields = []string{
	"initial", "current_asset", "peak_asset", "daily_loss", "daily_profit",
	"consecutive_loss", "last_trade_date", "total_trades", "win_trades",
	"total_profit", "grade_stats",
}

// NewState starts a ledger with balance as initial capital.
func NewState(balance float64, now time.Time) State {
	return State{
		Initial:       balance,
		CurrentAsset:  balance,
		PeakAsset:     balance,
		LastTradeDate: now.Format(dateLayout),
		GradeStats:    map[string]GradeStat{},
	}
}

func (s State) clone() State {
	c := s
	c.GradeStats = make(map[string]GradeStat, len(s.GradeStats))
	for k, v := range s.GradeStats {
		c.GradeStats[k] = v
	}
	return c
}

// dayLoss is the realized loss for the day containing now.
func (s State) dayLoss(now time.Time) float64 {
	if s.LastTradeDate != now.Format(dateLayout) {
		return 0
	}
	return s.DailyLoss
}

// Drawdown is the percent fall from the peak asset.
func (s State) DrawdownPct() float64 {
	if s.PeakAsset <= 0 {
		return 0
	}
	return (s.PeakAsset - s.CurrentAsset) / s.PeakAsset * 100
}

func (s State) WinRate() float64 {
	return risk.WinRate(s.WinTrades, s.TotalTrades)
}
