package eventservices

import (
	"context"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/utils"
)

func writeCsvFile(t *testing.T, dir string, ticker string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path.Join(dir, ticker+".csv"), []byte(content), 0644))
}

func TestCsvBarProvider(t *testing.T) {
	const aaplCsv = `date,open,high,low,close,volume
2024-01-02,184.35,185.88,183.43,185.64,82488700
2024-01-03,184.22,185.88,183.43,184.25,58414500
2024-01-04,182.15,183.09,180.88,181.91,71983600
`

	t.Run("serves bars parsed from the file", func(t *testing.T) {
		dir := t.TempDir()
		writeCsvFile(t, dir, "AAPL", aaplCsv)
		provider := NewCsvBarProvider(dir)

		date, err := utils.ParseDate("2024-01-03")
		require.NoError(t, err)

		bar, err := provider.GetBar(context.Background(), "AAPL", date)
		require.NoError(t, err)
		require.Equal(t, "AAPL", bar.Ticker)
		require.Equal(t, 184.25, bar.Close)
		require.Equal(t, 184.22, bar.Open)
		require.Equal(t, 58414500.0, bar.Volume)
	})

	t.Run("missing date reports no price data", func(t *testing.T) {
		dir := t.TempDir()
		writeCsvFile(t, dir, "AAPL", aaplCsv)
		provider := NewCsvBarProvider(dir)

		date, err := utils.ParseDate("2024-01-05")
		require.NoError(t, err)

		_, err = provider.GetBar(context.Background(), "AAPL", date)
		require.ErrorIs(t, err, models.ErrNoPriceData)
	})

	t.Run("missing file fails the load", func(t *testing.T) {
		provider := NewCsvBarProvider(t.TempDir())

		date, err := utils.ParseDate("2024-01-02")
		require.NoError(t, err)

		_, err = provider.GetBar(context.Background(), "GHOST", date)
		require.ErrorContains(t, err, "failed to open")
	})

	t.Run("duplicate dates fail the load", func(t *testing.T) {
		dir := t.TempDir()
		writeCsvFile(t, dir, "DUPE", `date,open,high,low,close,volume
2024-01-02,100,101,99,100.5,1000
2024-01-02,100,101,99,100.5,1000
`)
		provider := NewCsvBarProvider(dir)

		date, err := utils.ParseDate("2024-01-02")
		require.NoError(t, err)

		_, err = provider.GetBar(context.Background(), "DUPE", date)
		require.ErrorContains(t, err, "duplicate bar for 2024-01-02")
	})

	t.Run("trading dates filter to the range", func(t *testing.T) {
		dir := t.TempDir()
		writeCsvFile(t, dir, "AAPL", aaplCsv)
		provider := NewCsvBarProvider(dir)

		start, err := utils.ParseDate("2024-01-01")
		require.NoError(t, err)
		end, err := utils.ParseDate("2024-01-10")
		require.NoError(t, err)

		require.NoError(t, provider.PrefetchRange(context.Background(), []string{"AAPL"}, start, end))

		all := provider.TradingDates("AAPL", start, end)
		require.Len(t, all, 3)

		from, err := utils.ParseDate("2024-01-03")
		require.NoError(t, err)
		narrowed := provider.TradingDates("AAPL", from, end)
		require.Len(t, narrowed, 2)
		require.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), narrowed[0])
	})

	t.Run("prefetch honors context cancellation", func(t *testing.T) {
		dir := t.TempDir()
		writeCsvFile(t, dir, "AAPL", aaplCsv)
		provider := NewCsvBarProvider(dir)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := provider.PrefetchRange(ctx, []string{"AAPL"}, time.Time{}, time.Time{})
		require.ErrorIs(t, err, context.Canceled)
	})
}
