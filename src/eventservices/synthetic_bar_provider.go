package eventservices

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/utils"
)

var syntheticEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// SyntheticBarProvider fabricates deterministic daily bars for demos and
// offline runs without an API key. Every weekday has a bar; a given (seed,
// ticker, date) always yields the same prices, independent of the range
// requested.
type SyntheticBarProvider struct {
	seed int64
}

func NewSyntheticBarProvider(seed int64) *SyntheticBarProvider {
	return &SyntheticBarProvider{seed: seed}
}

func (p *SyntheticBarProvider) hashFraction(parts string) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", p.seed, parts)

	return float64(h.Sum64()%1_000_000) / 1_000_000.0
}

func (p *SyntheticBarProvider) bar(ticker string, date time.Time) *eventmodels.PriceBar {
	base := 50.0 + 200.0*p.hashFraction(ticker)
	phase := 2 * math.Pi * p.hashFraction(ticker+":phase")

	days := date.Sub(syntheticEpoch).Hours() / 24

	// slow cycle so trend and reversal producers both get regimes to react to
	trend := 1.0 + 0.25*math.Sin(days/34.0+phase)

	noise := (p.hashFraction(ticker+":"+dateKey(date)) - 0.5) * 0.02
	openNoise := (p.hashFraction(ticker+":open:"+dateKey(date)) - 0.5) * 0.02

	closePrice := base * trend * (1 + noise)
	openPrice := base * trend * (1 + openNoise)

	high := math.Max(openPrice, closePrice) * 1.005
	low := math.Min(openPrice, closePrice) * 0.995
	volume := math.Floor(500_000 + 1_000_000*p.hashFraction(ticker+":vol:"+dateKey(date)))

	return &eventmodels.PriceBar{
		Ticker:    ticker,
		Timestamp: date,
		Open:      openPrice,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}
}

func (p *SyntheticBarProvider) PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error {
	return nil
}

func (p *SyntheticBarProvider) GetBar(ctx context.Context, ticker string, date time.Time) (*eventmodels.PriceBar, error) {
	normalized := utils.NormalizeDate(date)
	if utils.IsWeekend(normalized) {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrNoPriceData, ticker, dateKey(normalized))
	}

	return p.bar(ticker, normalized), nil
}

func (p *SyntheticBarProvider) TradingDates(ticker string, start, end time.Time) []time.Time {
	return utils.WeekdaysBetween(start, end)
}
