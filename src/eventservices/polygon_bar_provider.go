package eventservices

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	polygonmodels "github.com/polygon-io/client-go/rest/models"
	log "github.com/sirupsen/logrus"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// PolygonBarProvider fetches daily aggregates from the Polygon REST API
// during prefetch and serves the day loop from memory.
type PolygonBarProvider struct {
	Client *polygon.Client

	mutex sync.RWMutex
	bars  map[string]map[string]*eventmodels.PriceBar
	dates map[string][]time.Time
}

func NewPolygonBarProvider(apiKey string) *PolygonBarProvider {
	return &PolygonBarProvider{
		Client: polygon.New(apiKey),
		bars:   make(map[string]map[string]*eventmodels.PriceBar),
		dates:  make(map[string][]time.Time),
	}
}

func (p *PolygonBarProvider) fetchRange(ctx context.Context, ticker string, start, end time.Time) error {
	log.Debugf("polygon provider: fetching daily aggregates for %s [%s, %s]", ticker, start.Format("2006-01-02"), end.Format("2006-01-02"))

	params := polygonmodels.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   polygonmodels.Day,
		From:       polygonmodels.Millis(start),
		To:         polygonmodels.Millis(end.AddDate(0, 0, 1)),
	}.WithOrder(polygonmodels.Asc).WithAdjusted(true)

	iter := p.Client.ListAggs(ctx, params)

	barsByDate := make(map[string]*eventmodels.PriceBar)
	var dates []time.Time

	for iter.Next() {
		item := iter.Item()

		timestamp := time.Time(item.Timestamp).UTC()
		date := time.Date(timestamp.Year(), timestamp.Month(), timestamp.Day(), 0, 0, 0, 0, time.UTC)

		bar := &eventmodels.PriceBar{
			Ticker:    ticker,
			Timestamp: date,
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		}

		barsByDate[dateKey(date)] = bar
		dates = append(dates, date)
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("fetchRange: failed to list aggs for %s: %w", ticker, err)
	}

	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	p.mutex.Lock()
	p.bars[ticker] = barsByDate
	p.dates[ticker] = dates
	p.mutex.Unlock()

	return nil
}

func (p *PolygonBarProvider) PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error {
	for _, ticker := range tickers {
		p.mutex.RLock()
		_, loaded := p.bars[ticker]
		p.mutex.RUnlock()

		if loaded {
			continue
		}

		if err := p.fetchRange(ctx, ticker, start, end); err != nil {
			return err
		}
	}

	return nil
}

func (p *PolygonBarProvider) GetBar(ctx context.Context, ticker string, date time.Time) (*eventmodels.PriceBar, error) {
	p.mutex.RLock()
	barsByDate, loaded := p.bars[ticker]
	p.mutex.RUnlock()

	if !loaded {
		if err := p.fetchRange(ctx, ticker, date, date); err != nil {
			return nil, err
		}

		p.mutex.RLock()
		barsByDate = p.bars[ticker]
		p.mutex.RUnlock()
	}

	bar, found := barsByDate[dateKey(date)]
	if !found {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrNoPriceData, ticker, dateKey(date))
	}

	return bar, nil
}

func (p *PolygonBarProvider) TradingDates(ticker string, start, end time.Time) []time.Time {
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
