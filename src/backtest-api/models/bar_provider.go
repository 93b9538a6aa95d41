package models

import (
	"context"
	"time"

	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// BarProvider supplies daily price bars to a backtest run. Implementations
// must return ErrNoPriceData (possibly wrapped) when a ticker has no bar for
// the requested date; the runner treats that as a skip, not a failure.
type BarProvider interface {
	GetBar(ctx context.Context, ticker string, date time.Time) (*eventmodels.PriceBar, error)

	// PrefetchRange loads everything needed for [start, end] up front so the
	// day loop never blocks on remote fetches.
	PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error

	// TradingDates lists the dates in [start, end] for which the ticker has a
	// bar, ascending.
	TradingDates(ticker string, start, end time.Time) []time.Time
}
