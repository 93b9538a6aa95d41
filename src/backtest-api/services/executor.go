package services

import (
	"fmt"
	"math"
	"time"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
)

// quantityEpsilon absorbs float drift when comparing share counts and cash.
const quantityEpsilon = 1e-9

// Executor fills the day's orders at closing prices. The whole batch is
// applied to a copy of the portfolio first; only if every fill and the final
// ledger checks succeed does the live portfolio take the new state. A failed
// batch leaves the portfolio untouched.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// ApplyOrders executes the non-hold orders in their given order and returns
// one ExecutedTrade per fill. Closing fills carry their realized gain.
func (e *Executor) ApplyOrders(portfolio *models.Portfolio, orders []*models.Order, prices map[string]float64, limits models.RiskLimits, date time.Time) ([]*models.ExecutedTrade, error) {
	working := portfolio.Copy()
	trades := make([]*models.ExecutedTrade, 0, len(orders))

	for _, order := range orders {
		if order == nil || order.IsHold() {
			continue
		}
		if err := order.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrLedgerViolation, err)
		}

		price, found := prices[order.Ticker]
		if !found || price <= 0 {
			return nil, fmt.Errorf("%w: %s on %s", models.ErrNoPriceData, order.Ticker, date.Format("2006-01-02"))
		}

		realized, err := e.fill(working, order, price)
		if err != nil {
			return nil, err
		}

		trade := models.NewExecutedTrade(date, order, price, working.TotalValue(prices))
		if order.Action.IsClosing() {
			trade.RealizedGain = &realized
		}
		trades = append(trades, trade)
	}

	if err := e.validate(working, prices, limits); err != nil {
		return nil, err
	}

	*portfolio = *working
	return trades, nil
}

// fill mutates the working portfolio for a single order and returns the
// realized gain for closing actions.
func (e *Executor) fill(portfolio *models.Portfolio, order *models.Order, price float64) (float64, error) {
	position, found := portfolio.Positions[order.Ticker]
	if !found {
		position = &models.Position{}
		portfolio.Positions[order.Ticker] = position
	}

	quantity := order.Quantity
	realized := 0.0

	switch order.Action {
	case models.OrderActionBuy:
		cost := quantity * price
		if cost > portfolio.Cash+quantityEpsilon {
			return 0, fmt.Errorf("%w: buy %s needs %.2f, have %.2f", models.ErrInsufficientCash, order.Ticker, cost, portfolio.Cash)
		}
		total := position.LongQuantity + quantity
		position.LongCostBasis = (position.LongCostBasis*position.LongQuantity + price*quantity) / total
		position.LongQuantity = total
		portfolio.Cash -= cost

	case models.OrderActionSell:
		if quantity > position.LongQuantity+quantityEpsilon {
			return 0, fmt.Errorf("%w: sell %s wants %.0f, long %.0f", models.ErrInvalidQuantityLong, order.Ticker, quantity, position.LongQuantity)
		}
		realized = (price - position.LongCostBasis) * quantity
		portfolio.RealizedGains[order.Ticker] += realized
		portfolio.Cash += quantity * price
		position.LongQuantity -= quantity
		if position.LongQuantity <= quantityEpsilon {
			position.LongQuantity = 0
			position.LongCostBasis = 0
		}

	case models.OrderActionShort:
		total := position.ShortQuantity + quantity
		position.ShortCostBasis = (position.ShortCostBasis*position.ShortQuantity + price*quantity) / total
		position.ShortQuantity = total
		portfolio.Cash += quantity * price

	case models.OrderActionCover:
		if quantity > position.ShortQuantity+quantityEpsilon {
			return 0, fmt.Errorf("%w: cover %s wants %.0f, short %.0f", models.ErrInvalidQuantityShort, order.Ticker, quantity, position.ShortQuantity)
		}
		cost := quantity * price
		if cost > portfolio.Cash+quantityEpsilon {
			return 0, fmt.Errorf("%w: cover %s needs %.2f, have %.2f", models.ErrInsufficientCash, order.Ticker, cost, portfolio.Cash)
		}
		realized = (position.ShortCostBasis - price) * quantity
		portfolio.RealizedGains[order.Ticker] += realized
		portfolio.Cash -= cost
		position.ShortQuantity -= quantity
		if position.ShortQuantity <= quantityEpsilon {
			position.ShortQuantity = 0
			position.ShortCostBasis = 0
		}

	default:
		return 0, fmt.Errorf("%w: unsupported action %s", models.ErrLedgerViolation, order.Action)
	}

	if position.IsFlat() {
		delete(portfolio.Positions, order.Ticker)
	}

	return realized, nil
}

// validate runs the post-batch ledger checks on the working copy.
func (e *Executor) validate(portfolio *models.Portfolio, prices map[string]float64, limits models.RiskLimits) error {
	if math.IsNaN(portfolio.Cash) || math.IsInf(portfolio.Cash, 0) {
		return fmt.Errorf("%w: cash is not finite", models.ErrLedgerViolation)
	}

	for ticker, position := range portfolio.Positions {
		if position.LongQuantity < -quantityEpsilon || position.ShortQuantity < -quantityEpsilon {
			return fmt.Errorf("%w: %s has a negative quantity", models.ErrLedgerViolation, ticker)
		}
		if math.IsNaN(position.LongCostBasis) || math.IsNaN(position.ShortCostBasis) {
			return fmt.Errorf("%w: %s has a non-finite cost basis", models.ErrLedgerViolation, ticker)
		}
	}

	total := portfolio.TotalValue(prices)
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return fmt.Errorf("%w: portfolio value is not finite", models.ErrLedgerViolation)
	}

	if floor := -limits.MarginRequirement * total; portfolio.Cash < floor-quantityEpsilon {
		return fmt.Errorf("%w: cash %.2f is below the margin floor %.2f", models.ErrLedgerViolation, portfolio.Cash, floor)
	}

	return nil
}
