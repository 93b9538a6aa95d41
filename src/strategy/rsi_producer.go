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

// RsiProducer fades overbought/oversold readings on Wilder's RSI.
type RsiProducer struct {
	period     int
	overbought float64
	oversold   float64
}

func NewRsiProducer() *RsiProducer {
	return &RsiProducer{
		period:     14,
		overbought: 70,
		oversold:   30,
	}
}

func (p *RsiProducer) ID() string {
	return "rsi"
}

func (p *RsiProducer) Name() string {
	return "RSI Reversal"
}

func (p *RsiProducer) ProduceSignal(ctx context.Context, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(history) < p.period+1 {
		reasoning := fmt.Sprintf("only %d bars of history, need %d", len(history), p.period+1)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 20, reasoning), nil
	}

	rsi := indicators.NewRsi(p.period)

	var value float64
	for _, bar := range history {
		value = rsi.Update(bar.Close)
	}

	reasoning := fmt.Sprintf("RSI(%d)=%.1f", p.period, value)

	if value <= p.oversold {
		confidence := math.Min(100, 55+(p.oversold-value)*1.5)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionBullish, confidence, reasoning), nil
	}

	if value >= p.overbought {
		confidence := math.Min(100, 55+(value-p.overbought)*1.5)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionBearish, confidence, reasoning), nil
	}

	return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 50, reasoning), nil
}
