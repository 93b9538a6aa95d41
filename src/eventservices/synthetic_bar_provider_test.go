package eventservices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/utils"
)

func TestSyntheticBarProvider(t *testing.T) {
	weekday := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)

	t.Run("same seed and date always yield the same bar", func(t *testing.T) {
		first, err := NewSyntheticBarProvider(7).GetBar(context.Background(), "AAPL", weekday)
		require.NoError(t, err)

		second, err := NewSyntheticBarProvider(7).GetBar(context.Background(), "AAPL", weekday)
		require.NoError(t, err)

		require.Equal(t, first, second)
	})

	t.Run("different seeds diverge", func(t *testing.T) {
		first, err := NewSyntheticBarProvider(1).GetBar(context.Background(), "AAPL", weekday)
		require.NoError(t, err)

		second, err := NewSyntheticBarProvider(2).GetBar(context.Background(), "AAPL", weekday)
		require.NoError(t, err)

		require.NotEqual(t, first.Close, second.Close)
	})

	t.Run("bars are internally consistent", func(t *testing.T) {
		bar, err := NewSyntheticBarProvider(0).GetBar(context.Background(), "TSLA", weekday)
		require.NoError(t, err)

		require.Greater(t, bar.Close, 0.0)
		require.GreaterOrEqual(t, bar.High, bar.Open)
		require.GreaterOrEqual(t, bar.High, bar.Close)
		require.LessOrEqual(t, bar.Low, bar.Open)
		require.LessOrEqual(t, bar.Low, bar.Close)
		require.GreaterOrEqual(t, bar.Volume, 500000.0)
	})

	t.Run("weekends have no bars", func(t *testing.T) {
		saturday := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)

		_, err := NewSyntheticBarProvider(0).GetBar(context.Background(), "AAPL", saturday)
		require.ErrorIs(t, err, models.ErrNoPriceData)
	})

	t.Run("trading dates are the weekdays in range", func(t *testing.T) {
		provider := NewSyntheticBarProvider(0)

		start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)

		dates := provider.TradingDates("AAPL", start, end)
		require.Len(t, dates, 10)
		for _, date := range dates {
			require.False(t, utils.IsWeekend(date))
		}
	})
}
