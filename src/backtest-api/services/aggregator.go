package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/strategy"
	"github.com/fundsim/fund-backtester/src/worker"
)

// retryBackoff is the pause before a failed producer call is retried.
const retryBackoff = 250 * time.Millisecond

// SignalAggregator fans every (producer, ticker) pair out onto the shared
// worker pool and joins before returning, so a day never starts trading on a
// partial signal set. A call that fails after its retries, or that outruns its
// timeout, simply contributes no signal for that pair; the day goes on with
// whatever arrived.
type SignalAggregator struct {
	producers *strategy.ProducerRegistry
	pool      *worker.Pool
	timeout   time.Duration
	retries   int
}

func NewSignalAggregator(producers *strategy.ProducerRegistry, pool *worker.Pool, config *eventmodels.EngineConfigYAML) *SignalAggregator {
	return &SignalAggregator{
		producers: producers,
		pool:      pool,
		timeout:   time.Duration(config.ProducerTimeoutSeconds) * time.Second,
		retries:   config.ProducerRetries,
	}
}

type producerCall struct {
	producerID string
	ticker     string
	signal     *models.Signal
	err        error
}

// CollectSignals gathers one signal per (producer, ticker) pair for the given
// date. The returned map holds each ticker's surviving signals ordered by
// producer id; the warnings describe every pair that was dropped.
func (a *SignalAggregator) CollectSignals(ctx context.Context, producerIDs []string, tickers []string, date time.Time, histories map[string][]*eventmodels.PriceBar) (map[string][]*models.Signal, []string) {
	results := make(chan producerCall, len(producerIDs)*len(tickers))
	var warnings []string
	var wg sync.WaitGroup

	for _, ticker := range tickers {
		history := histories[ticker]
		for _, producerID := range producerIDs {
			producer, found := a.producers.Get(producerID)
			if !found {
				warnings = append(warnings, fmt.Sprintf("unknown producer %s", producerID))
				continue
			}

			call := producerCall{producerID: producerID, ticker: ticker}
			wg.Add(1)
			err := a.pool.Submit(ctx, func() {
				defer wg.Done()
				call.signal, call.err = a.callWithRetry(ctx, producer, call.ticker, date, history)
				results <- call
			})
			if err != nil {
				wg.Done()
				warnings = append(warnings, fmt.Sprintf("%s/%s not scheduled: %v", producerID, ticker, err))
			}
		}
	}

	wg.Wait()
	close(results)

	signals := make(map[string][]*models.Signal, len(tickers))
	for call := range results {
		if call.err != nil {
			warnings = append(warnings, fmt.Sprintf("%s/%s on %s: %v", call.producerID, call.ticker, date.Format("2006-01-02"), call.err))
			continue
		}
		if err := call.signal.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s/%s on %s: %v", call.producerID, call.ticker, date.Format("2006-01-02"), err))
			continue
		}
		signals[call.ticker] = append(signals[call.ticker], call.signal)
	}

	for _, ticker := range tickers {
		sort.Slice(signals[ticker], func(i, j int) bool {
			return signals[ticker][i].ProducerID < signals[ticker][j].ProducerID
		})
	}

	for _, warning := range warnings {
		log.Warnf("SignalAggregator.CollectSignals: %s", warning)
	}

	return signals, warnings
}

// callWithRetry runs one producer call under the per-call timeout, retrying
// once per configured retry after a short backoff. The producer runs in its
// own goroutine; if it ignores its context and overruns the timeout, the call
// is abandoned rather than awaited.
func (a *SignalAggregator) callWithRetry(ctx context.Context, producer models.SignalProducer, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	var lastErr error

	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		signal, err := a.callOnce(ctx, producer, ticker, date, history)
		if err == nil {
			return signal, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (a *SignalAggregator) callOnce(ctx context.Context, producer models.SignalProducer, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan producerCall, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- producerCall{err: fmt.Errorf("producer %s panicked: %v", producer.ID(), rec)}
			}
		}()

		signal, err := producer.ProduceSignal(callCtx, ticker, date, history)
		done <- producerCall{signal: signal, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return nil, result.err
		}
		if result.signal == nil {
			return nil, fmt.Errorf("producer %s returned no signal", producer.ID())
		}
		return result.signal, nil
	case <-callCtx.Done():
		return nil, fmt.Errorf("producer %s timed out after %s: %w", producer.ID(), a.timeout, callCtx.Err())
	}
}
