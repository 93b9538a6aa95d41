package services

import (
	"fmt"
	"math"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/strategy"
)

// PortfolioManager turns the day's signals for one ticker into at most one
// order. Decisions depend only on the arguments and the registry's producer
// weights, so the same inputs always yield the same order.
type PortfolioManager struct {
	producers *strategy.ProducerRegistry
}

func NewPortfolioManager(producers *strategy.ProducerRegistry) *PortfolioManager {
	return &PortfolioManager{producers: producers}
}

// MakeOrder tallies a confidence-weighted vote across the ticker's signals and
// maps the winning direction onto the current position. cashBudget is the cash
// still unspent by orders formed earlier in the same day, so a batch of buys
// cannot jointly overdraw the account.
//
// A direction must win strictly; any tie holds. A bearish win against a long
// position sells the entire long regardless of caps. A bullish win against a
// short position covers as much as cash allows. Otherwise the order opens or
// extends a position clipped by the risk cap and the cash budget.
func (m *PortfolioManager) MakeOrder(ticker string, signals []*models.Signal, position models.Position, cap models.PositionCap, cashBudget float64, price float64) *models.Order {
	if price <= 0 {
		return models.NewHoldOrder(ticker, "no usable price")
	}

	bullish, bearish, neutral := m.tally(signals)
	summary := fmt.Sprintf("votes bullish=%.1f bearish=%.1f neutral=%.1f", bullish, bearish, neutral)

	switch {
	case bullish > bearish && bullish > neutral:
		if position.ShortQuantity > 0 {
			quantity := math.Min(position.ShortQuantity, math.Floor(cashBudget/price))
			if quantity <= 0 {
				return models.NewHoldOrder(ticker, summary+", no cash to cover")
			}
			return models.NewOrder(ticker, models.OrderActionCover, quantity, summary)
		}
		quantity := math.Min(cap.MaxBuy, math.Floor(cashBudget/price))
		if quantity <= 0 {
			return models.NewHoldOrder(ticker, summary+", buy capped to zero")
		}
		return models.NewOrder(ticker, models.OrderActionBuy, quantity, summary)

	case bearish > bullish && bearish > neutral:
		if position.LongQuantity > 0 {
			return models.NewOrder(ticker, models.OrderActionSell, position.LongQuantity, summary)
		}
		if cap.MaxShort <= 0 {
			return models.NewHoldOrder(ticker, summary+", short capped to zero")
		}
		return models.NewOrder(ticker, models.OrderActionShort, cap.MaxShort, summary)

	default:
		return models.NewHoldOrder(ticker, summary)
	}
}

func (m *PortfolioManager) tally(signals []*models.Signal) (bullish, bearish, neutral float64) {
	for _, signal := range signals {
		weight := m.producers.Weight(signal.ProducerID)
		switch signal.Direction {
		case models.SignalDirectionBullish:
			bullish += signal.Confidence * weight
		case models.SignalDirectionBearish:
			bearish += signal.Confidence * weight
		case models.SignalDirectionNeutral:
			neutral += signal.Confidence * weight
		}
	}
	return bullish, bearish, neutral
}
