package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/utils"
)

type MockBarProvider struct {
	mutex sync.RWMutex
	bars  map[string]map[string]*eventmodels.PriceBar
	dates map[string][]time.Time

	prefetched []string
}

func NewMockBarProvider() *MockBarProvider {
	return &MockBarProvider{
		bars:  make(map[string]map[string]*eventmodels.PriceBar),
		dates: make(map[string][]time.Time),
	}
}

// NewMockBarProviderFromCloses builds a provider with one flat bar per close,
// in timestamp order.
func NewMockBarProviderFromCloses(ticker string, timestamps []time.Time, closes []float64) *MockBarProvider {
	if len(timestamps) != len(closes) {
		panic("timestamps and closes must have the same length")
	}

	provider := NewMockBarProvider()
	for i := 0; i < len(closes); i++ {
		provider.AddBar(&eventmodels.PriceBar{
			Ticker:    ticker,
			Timestamp: timestamps[i],
			Open:      closes[i],
			High:      closes[i],
			Low:       closes[i],
			Close:     closes[i],
			Volume:    1000,
		})
	}

	return provider
}

func (p *MockBarProvider) AddBar(bar *eventmodels.PriceBar) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	date := utils.NormalizeDate(bar.Timestamp)

	if _, found := p.bars[bar.Ticker]; !found {
		p.bars[bar.Ticker] = make(map[string]*eventmodels.PriceBar)
	}

	p.bars[bar.Ticker][date.Format("2006-01-02")] = bar
	p.dates[bar.Ticker] = append(p.dates[bar.Ticker], date)

	sort.Slice(p.dates[bar.Ticker], func(i, j int) bool {
		return p.dates[bar.Ticker][i].Before(p.dates[bar.Ticker][j])
	})
}

func (p *MockBarProvider) GetBar(ctx context.Context, ticker string, date time.Time) (*eventmodels.PriceBar, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	bar, found := p.bars[ticker][date.Format("2006-01-02")]
	if !found {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrNoPriceData, ticker, date.Format("2006-01-02"))
	}

	return bar, nil
}

func (p *MockBarProvider) PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.prefetched = append(p.prefetched, tickers...)

	return nil
}

func (p *MockBarProvider) TradingDates(ticker string, start, end time.Time) []time.Time {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var dates []time.Time
	for _, date := range p.dates[ticker] {
		if date.Before(start) || date.After(end) {
			continue
		}

		dates = append(dates, date)
	}

	return dates
}

// Prefetched reports every ticker passed to PrefetchRange, in call order.
func (p *MockBarProvider) Prefetched() []string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return append([]string{}, p.prefetched...)
}
