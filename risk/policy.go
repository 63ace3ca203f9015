package risk

// Policy holds the entry circuit breakers.
type Policy struct {
	// Daily loss cap is the larger of DailyLossFloorPct of the initial capital
	// and DailyLossProfitShare of the cumulative realized profit.
	DailyLossFloorPct    float64 `yaml:"daily_loss_floor_pct" json:"daily_loss_floor_pct"`       // 2.0
	DailyLossProfitShare float64 `yaml:"daily_loss_profit_share" json:"daily_loss_profit_share"` // 0.3

	MaxConsecutiveLosses int `yaml:"max_consecutive_losses" json:"max_consecutive_losses"` // 3

	// DrawdownFloor is the fraction of initial capital equity may not fall below.
	DrawdownFloor float64 `yaml:"drawdown_floor" json:"drawdown_floor"` // 0.85

	MaxOpenPositions int `yaml:"max_open_positions" json:"max_open_positions"` // 1
}

func DefaultPolicy() Policy {
	return Policy{
		DailyLossFloorPct:    2.0,
		DailyLossProfitShare: 0.3,
		MaxConsecutiveLosses: 3,
		DrawdownFloor:        0.85,
		MaxOpenPositions:     1,
	}
}

type AccountSnapshot struct {
	Initial       float64
	Equity        float64
	OpenPositions int
}

type PnLSnapshot struct {
	DayLoss           float64 // realized loss today, positive number
	TotalProfit       float64 // cumulative realized P/L
	ConsecutiveLosses int
}
