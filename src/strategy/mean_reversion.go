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

// MeanReversionProducer fades moves outside the Bollinger bands: bearish
// above the upper band, bullish below the lower band.
type MeanReversionProducer struct {
	smaPeriod int
	bandWidth float64
}

func NewMeanReversionProducer() *MeanReversionProducer {
	return &MeanReversionProducer{
		smaPeriod: 20,
		bandWidth: 2.0,
	}
}

func (p *MeanReversionProducer) ID() string {
	return "meanreversion"
}

func (p *MeanReversionProducer) Name() string {
	return "Bollinger Band Mean Reversion"
}

func (p *MeanReversionProducer) ProduceSignal(ctx context.Context, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(history) < p.smaPeriod {
		reasoning := fmt.Sprintf("only %d bars of history, need %d", len(history), p.smaPeriod)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 20, reasoning), nil
	}

	bands := indicators.NewBollingerBands(p.smaPeriod, p.bandWidth)

	var bandStats indicators.BollingerBandsStats
	for _, bar := range history {
		var err error

		if _, bandStats, err = bands.Update(bar); err != nil {
			return nil, fmt.Errorf("meanreversion: bollinger bands: %w", err)
		}
	}

	lastClose := history[len(history)-1].Close
	percentB := bandStats.PercentB(lastClose)
	reasoning := fmt.Sprintf("close %.2f, bands [%.2f, %.2f], %%B=%.2f", lastClose, bandStats.Lower, bandStats.Upper, percentB)

	if percentB > 1 {
		confidence := math.Min(100, 55+(percentB-1)*300)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionBearish, confidence, reasoning), nil
	}

	if percentB < 0 {
		confidence := math.Min(100, 55+(-percentB)*300)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionBullish, confidence, reasoning), nil
	}

	return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 50, reasoning), nil
}
