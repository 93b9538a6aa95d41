package services

import (
	"math"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
)

// RiskManager computes per-ticker position caps before each day's orders are
// formed. It never mutates the portfolio: callers get whole-share budgets and
// the portfolio manager clips against them.
type RiskManager struct{}

func NewRiskManager() *RiskManager {
	return &RiskManager{}
}

// Caps returns the maximum number of shares that may be bought or shorted per
// ticker today. The buy cap is the remaining share-of-portfolio budget for the
// ticker. The short cap is the lesser of that budget and the remaining margin
// budget, which holds the aggregate short book within MarginRequirement times
// total value. MarginRequirement of zero disables shorting entirely.
func (m *RiskManager) Caps(portfolio *models.Portfolio, prices map[string]float64, tickers []string, limits models.RiskLimits) map[string]models.PositionCap {
	caps := make(map[string]models.PositionCap, len(tickers))

	totalValue := portfolio.TotalValue(prices)
	marginBudget := limits.MarginRequirement*totalValue - portfolio.ShortExposure(prices)
	if marginBudget < 0 {
		marginBudget = 0
	}

	for _, ticker := range tickers {
		price := prices[ticker]
		if price <= 0 || totalValue <= 0 {
			caps[ticker] = models.PositionCap{Ticker: ticker}
			continue
		}

		position := portfolio.GetPosition(ticker)
		shareBudget := limits.MaxPositionShare*totalValue - position.GrossExposure(price)
		if shareBudget < 0 {
			shareBudget = 0
		}

		maxBuy := math.Floor(shareBudget / price)

		maxShort := 0.0
		if limits.MarginRequirement > 0 {
			maxShort = math.Floor(math.Min(shareBudget, marginBudget) / price)
		}

		caps[ticker] = models.PositionCap{
			Ticker:   ticker,
			MaxBuy:   maxBuy,
			MaxShort: maxShort,
		}
	}

	return caps
}
