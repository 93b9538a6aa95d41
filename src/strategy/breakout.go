package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// BreakoutProducer signals when the latest close escapes the prior n-day
// high/low channel.
type BreakoutProducer struct {
	channelPeriod int
}

func NewBreakoutProducer() *BreakoutProducer {
	return &BreakoutProducer{
		channelPeriod: 20,
	}
}

func (p *BreakoutProducer) ID() string {
	return "breakout"
}

func (p *BreakoutProducer) Name() string {
	return "Channel Breakout"
}

func (p *BreakoutProducer) ProduceSignal(ctx context.Context, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(history) < p.channelPeriod+1 {
		reasoning := fmt.Sprintf("only %d bars of history, need %d", len(history), p.channelPeriod+1)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 20, reasoning), nil
	}

	last := history[len(history)-1]
	channel := history[len(history)-1-p.channelPeriod : len(history)-1]

	channelHigh := channel[0].High
	channelLow := channel[0].Low
	for _, bar := range channel[1:] {
		channelHigh = math.Max(channelHigh, bar.High)
		channelLow = math.Min(channelLow, bar.Low)
	}

	reasoning := fmt.Sprintf("close %.2f vs %d-day channel [%.2f, %.2f]", last.Close, p.channelPeriod, channelLow, channelHigh)

	if last.Close > channelHigh {
		breach := (last.Close - channelHigh) / channelHigh
		confidence := math.Min(100, 60+breach/0.02*40)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionBullish, confidence, reasoning), nil
	}

	if last.Close < channelLow {
		breach := (channelLow - last.Close) / channelLow
		confidence := math.Min(100, 60+breach/0.02*40)
		return models.NewSignal(p.ID(), ticker, models.SignalDirectionBearish, confidence, reasoning), nil
	}

	return models.NewSignal(p.ID(), ticker, models.SignalDirectionNeutral, 50, reasoning), nil
}
