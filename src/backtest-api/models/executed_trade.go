package models

import "time"

// ExecutedTrade records a filled order at the day's closing price, after the
// ledger was updated. RealizedGain is set on closing trades only.
type ExecutedTrade struct {
	Date           time.Time   `json:"date"`
	Ticker         string      `json:"ticker"`
	Action         OrderAction `json:"action"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price"`
	PortfolioValue float64     `json:"portfolio_value"`
	RealizedGain   *float64    `json:"realized_gain,omitempty"`
}

func NewExecutedTrade(date time.Time, order *Order, price float64, portfolioValue float64) *ExecutedTrade {
	return &ExecutedTrade{
		Date:           date,
		Ticker:         order.Ticker,
		Action:         order.Action,
		Quantity:       order.Quantity,
		Price:          price,
		PortfolioValue: portfolioValue,
	}
}
