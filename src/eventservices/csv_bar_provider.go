package eventservices

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// CsvBarProvider serves daily bars from one CSV file per ticker, named
// <dir>/<TICKER>.csv with date,open,high,low,close,volume columns.
type CsvBarProvider struct {
	dir   string
	mutex sync.RWMutex
	bars  map[string]map[string]*eventmodels.PriceBar
	dates map[string][]time.Time
}

func NewCsvBarProvider(dir string) *CsvBarProvider {
	return &CsvBarProvider{
		dir:   dir,
		bars:  make(map[string]map[string]*eventmodels.PriceBar),
		dates: make(map[string][]time.Time),
	}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (p *CsvBarProvider) loadTicker(ticker string) error {
	p.mutex.RLock()
	_, loaded := p.bars[ticker]
	p.mutex.RUnlock()

	if loaded {
		return nil
	}

	filename := path.Join(p.dir, fmt.Sprintf("%s.csv", ticker))

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("loadTicker: failed to open %s: %w", filename, err)
	}
	defer f.Close()

	var rows []*eventmodels.CsvPriceBarDTO
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return fmt.Errorf("loadTicker: failed to unmarshal %s: %w", filename, err)
	}

	barsByDate := make(map[string]*eventmodels.PriceBar, len(rows))
	dates := make([]time.Time, 0, len(rows))

	for _, row := range rows {
		bar, err := row.ToModel(ticker)
		if err != nil {
			return fmt.Errorf("loadTicker: %s: %w", filename, err)
		}

		if _, duplicate := barsByDate[dateKey(bar.Timestamp)]; duplicate {
			return fmt.Errorf("loadTicker: %s: duplicate bar for %s", filename, dateKey(bar.Timestamp))
		}

		barsByDate[dateKey(bar.Timestamp)] = bar
		dates = append(dates, bar.Timestamp)
	}

	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	p.mutex.Lock()
	p.bars[ticker] = barsByDate
	p.dates[ticker] = dates
	p.mutex.Unlock()

	log.Debugf("csv provider: loaded %d bars for %s from %s", len(dates), ticker, filename)

	return nil
}

func (p *CsvBarProvider) PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error {
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.loadTicker(ticker); err != nil {
			return err
		}
	}

	return nil
}

func (p *CsvBarProvider) GetBar(ctx context.Context, ticker string, date time.Time) (*eventmodels.PriceBar, error) {
	if err := p.loadTicker(ticker); err != nil {
		return nil, err
	}

	p.mutex.RLock()
	defer p.mutex.RUnlock()

	bar, found := p.bars[ticker][dateKey(date)]
	if !found {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrNoPriceData, ticker, dateKey(date))
	}

	return bar, nil
}

func (p *CsvBarProvider) TradingDates(ticker string, start, end time.Time) []time.Time {
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
