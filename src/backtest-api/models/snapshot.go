package models

import "time"

// DailySnapshot captures the portfolio after a day's orders were applied.
// Snapshots are append-only and the sole input to performance calculations.
type DailySnapshot struct {
	Date        time.Time            `json:"date"`
	Cash        float64              `json:"cash"`
	TotalValue  float64              `json:"total_value"`
	DailyReturn float64              `json:"daily_return"`
	Positions   map[string]*Position `json:"positions"`
}

func NewDailySnapshot(date time.Time, portfolio *Portfolio, prices map[string]float64, previousValue float64) *DailySnapshot {
	totalValue := portfolio.TotalValue(prices)

	dailyReturn := 0.0
	if previousValue != 0 {
		dailyReturn = totalValue/previousValue - 1.0
	}

	positions := make(map[string]*Position, len(portfolio.Positions))
	for ticker, position := range portfolio.Positions {
		positions[ticker] = position.Copy()
	}

	return &DailySnapshot{
		Date:        date,
		Cash:        portfolio.Cash,
		TotalValue:  totalValue,
		DailyReturn: dailyReturn,
		Positions:   positions,
	}
}
