package risk

import (
	"fmt"
	"strings"
)

const (
	CodeDailyLoss     = "DAILY_LOSS_LIMIT"
	CodeLossStreak    = "LOSS_STREAK"
	CodeDrawdownFloor = "DRAWDOWN_FLOOR"
	CodeMaxPositions  = "TOO_MANY_OPEN_POSITIONS"
	CodeNoCapital     = "NO_CAPITAL"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	DailyLossCap float64
	EquityFloor  float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation messages, empty when allowed.
func (d Decision) Reason() string {
	msgs := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		msgs[i] = v.Msg
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether a violation with code was raised.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// DailyLossCap returns the realized loss allowed for one day.
func DailyLossCap(p Policy, initial, totalProfit float64) float64 {
	floor := initial * p.DailyLossFloorPct / 100
	share := totalProfit * p.DailyLossProfitShare
	return max(floor, share)
}

// Evaluate applies the entry circuit breakers.
func Evaluate(p Policy, acct AccountSnapshot, pnl PnLSnapshot) Decision {
	d := Decision{Allowed: true}

	if acct.Initial <= 0 || acct.Equity <= 0 {
		d.add(CodeNoCapital, fmt.Sprintf("no capital: initial %.2f equity %.2f", acct.Initial, acct.Equity))
		return d
	}

	d.DailyLossCap = DailyLossCap(p, acct.Initial, pnl.TotalProfit)
	if d.DailyLossCap > 0 && pnl.DayLoss >= d.DailyLossCap {
		d.add(CodeDailyLoss, fmt.Sprintf("daily loss %.2f >= cap %.2f", pnl.DayLoss, d.DailyLossCap))
	}

	if p.MaxConsecutiveLosses > 0 && pnl.ConsecutiveLosses >= p.MaxConsecutiveLosses {
		d.add(CodeLossStreak, fmt.Sprintf("consecutive losses %d >= max %d", pnl.ConsecutiveLosses, p.MaxConsecutiveLosses))
	}

	d.EquityFloor = acct.Initial * p.DrawdownFloor
	if acct.Equity < d.EquityFloor {
		d.add(CodeDrawdownFloor, fmt.Sprintf("equity %.2f below floor %.2f", acct.Equity, d.EquityFloor))
	}

	if p.MaxOpenPositions > 0 && acct.OpenPositions >= p.MaxOpenPositions {
		d.add(CodeMaxPositions, fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, p.MaxOpenPositions))
	}

	return d
}
