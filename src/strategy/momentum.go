package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/indicators"
)

// MomentumProducer follows the trend: bullish while the fast moving average
// sits above the slow one, bearish below. Confidence scales with the spread
// between the two averages.
type MomentumProducer struct {
	fastPeriod int
	slowPeriod int
}

func NewMomentumProducer() *MomentumProducer {
	return &MomentumProducer{
		fastPeriod: 10,
		slowPeriod: 30,
	}
}

func (p *MomentumProducer) ID() string {
	return "momentum"
}

func (p *MomentumProducer) Name() string {
	return "SMA Crossover Momentum"
}

func (p *MomentumProducer) ProduceSignal(ctx context.Context, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(history) < p.slowPeriod {
		reasoning := fmt.Sprintf("only %d bars of history, need %d", len(history), p.slowPeriod)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 20, reasoning), nil
	}

	fast := indicators.NewSma(p.fastPeriod)
	slow := indicators.NewSma(p.slowPeriod)

	var fastValue, slowValue float64
	for _, bar := range history {
		var err error

		if _, fastValue, err = fast.Update(bar.Close); err != nil {
			return nil, fmt.Errorf("momentum: fast sma: %w", err)
		}

		if _, slowValue, err = slow.Update(bar.Close); err != nil {
			return nil, fmt.Errorf("momentum: slow sma: %w", err)
		}
	}

	spread := (fastValue - slowValue) / slowValue
	reasoning := fmt.Sprintf("SMA(%d)=%.2f vs SMA(%d)=%.2f, spread %.2f%%", p.fastPeriod, fastValue, p.slowPeriod, slowValue, spread*100)

	// below half a percent the averages are effectively flat
	if math.Abs(spread) < 0.005 {
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 50, reasoning), nil
	}

	direction := models.SignalDirectionBullish
	if spread < 0 {
		direction = models.SignalDirectionBearish
	}

	confidence := math.Min(100, math.Abs(spread)/0.05*100)

	return models.NewSignal(p.ID(), ticker, direction, confidence, reasoning), nil
}
