package models

import (
	"context"
	"time"

	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// SignalProducer is the pluggable strategy boundary. ProduceSignal is called
// once per ticker per day with the lookback history ending the prior trading
// day; it must respect ctx cancellation since the aggregator bounds each call
// with a timeout.
type SignalProducer interface {
	ID() string
	Name() string
	ProduceSignal(ctx context.Context, ticker string, date time.Time, history []*eventmodels.PriceBar) (*Signal, error)
}
