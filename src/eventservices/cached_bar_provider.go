package eventservices

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// CachedBarProvider is a read-through cache in front of another provider,
// used on the Polygon path so repeated sessions over the same range don't
// refetch.
type CachedBarProvider struct {
	inner models.BarProvider
	cache *cache.Cache
}

func NewCachedBarProvider(inner models.BarProvider) *CachedBarProvider {
	return &CachedBarProvider{
		inner: inner,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

func barCacheKey(ticker string, date time.Time) string {
	return fmt.Sprintf("%s:%s", ticker, dateKey(date))
}

func (p *CachedBarProvider) GetBar(ctx context.Context, ticker string, date time.Time) (*eventmodels.PriceBar, error) {
	key := barCacheKey(ticker, date)

	if cached, found := p.cache.Get(key); found {
		return cached.(*eventmodels.PriceBar), nil
	}

	bar, err := p.inner.GetBar(ctx, ticker, date)
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, bar, cache.DefaultExpiration)

	return bar, nil
}

func (p *CachedBarProvider) PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error {
	return p.inner.PrefetchRange(ctx, tickers, start, end)
}

func (p *CachedBarProvider) TradingDates(ticker string, start, end time.Time) []time.Time {
	return p.inner.TradingDates(ticker, start, end)
}
