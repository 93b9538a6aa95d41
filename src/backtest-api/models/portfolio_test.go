package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPortfolio(t *testing.T) {
	t.Run("new portfolio is all cash", func(t *testing.T) {
		portfolio := NewPortfolio(10000)

		require.Equal(t, 10000.0, portfolio.Cash)
		require.Empty(t, portfolio.Positions)
		require.Equal(t, 10000.0, portfolio.TotalValue(nil))
	})

	t.Run("total value nets long and short sides", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 10, LongCostBasis: 90}
		portfolio.Positions["TSLA"] = &Position{ShortQuantity: 5, ShortCostBasis: 200}

		prices := map[string]float64{"AAPL": 100, "TSLA": 180}

		// 1000 + 10*100 - 5*180
		require.Equal(t, 1100.0, portfolio.TotalValue(prices))
	})

	t.Run("position without a price contributes nothing", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 10, LongCostBasis: 90}

		require.Equal(t, 1000.0, portfolio.TotalValue(map[string]float64{}))
	})

	t.Run("short exposure sums only short sides", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 10}
		portfolio.Positions["TSLA"] = &Position{ShortQuantity: 5}

		prices := map[string]float64{"AAPL": 100, "TSLA": 180}

		require.Equal(t, 900.0, portfolio.ShortExposure(prices))
	})

	t.Run("get position returns a zero value for unknown tickers", func(t *testing.T) {
		portfolio := NewPortfolio(1000)

		position := portfolio.GetPosition("AAPL")
		require.True(t, position.IsFlat())
	})

	t.Run("get position returns a copy", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 10}

		position := portfolio.GetPosition("AAPL")
		position.LongQuantity = 99

		require.Equal(t, 10.0, portfolio.Positions["AAPL"].LongQuantity)
	})

	t.Run("tickers are sorted", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.Positions["TSLA"] = &Position{LongQuantity: 1}
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 1}
		portfolio.Positions["MSFT"] = &Position{LongQuantity: 1}

		require.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, portfolio.Tickers())
	})

	t.Run("copy is deep", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 10, LongCostBasis: 100}
		portfolio.RealizedGains["AAPL"] = 50

		copied := portfolio.Copy()
		copied.Cash = 0
		copied.Positions["AAPL"].LongQuantity = 99
		copied.RealizedGains["AAPL"] = -1

		require.Equal(t, 1000.0, portfolio.Cash)
		require.Equal(t, 10.0, portfolio.Positions["AAPL"].LongQuantity)
		require.Equal(t, 50.0, portfolio.RealizedGains["AAPL"])
	})

	t.Run("realized gains accumulate across tickers", func(t *testing.T) {
		portfolio := NewPortfolio(1000)
		portfolio.RealizedGains["AAPL"] = 120
		portfolio.RealizedGains["TSLA"] = -40

		require.Equal(t, 80.0, portfolio.TotalRealizedGains())
	})
}

func TestPosition(t *testing.T) {
	t.Run("net value subtracts the short side", func(t *testing.T) {
		position := Position{LongQuantity: 10, ShortQuantity: 4}
		require.Equal(t, 600.0, position.NetValue(100))
	})

	t.Run("gross exposure adds both sides", func(t *testing.T) {
		position := Position{LongQuantity: 10, ShortQuantity: 4}
		require.Equal(t, 1400.0, position.GrossExposure(100))
	})

	t.Run("flat only when both sides are zero", func(t *testing.T) {
		require.True(t, (&Position{}).IsFlat())
		require.False(t, (&Position{LongQuantity: 1}).IsFlat())
		require.False(t, (&Position{ShortQuantity: 1}).IsFlat())
	})
}

func TestDailySnapshot(t *testing.T) {
	date := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)

	t.Run("seed snapshot has no daily return", func(t *testing.T) {
		snapshot := NewDailySnapshot(date, NewPortfolio(10000), nil, 0)

		require.Equal(t, 10000.0, snapshot.TotalValue)
		require.Equal(t, 10000.0, snapshot.Cash)
		require.Equal(t, 0.0, snapshot.DailyReturn)
		require.Empty(t, snapshot.Positions)
	})

	t.Run("daily return compares against the previous value", func(t *testing.T) {
		portfolio := NewPortfolio(5000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 50, LongCostBasis: 100}

		prices := map[string]float64{"AAPL": 110}
		snapshot := NewDailySnapshot(date, portfolio, prices, 10000)

		require.Equal(t, 10500.0, snapshot.TotalValue)
		require.InDelta(t, 0.05, snapshot.DailyReturn, 1e-9)
	})

	t.Run("positions are copied", func(t *testing.T) {
		portfolio := NewPortfolio(5000)
		portfolio.Positions["AAPL"] = &Position{LongQuantity: 50, LongCostBasis: 100}

		snapshot := NewDailySnapshot(date, portfolio, map[string]float64{"AAPL": 100}, 0)
		portfolio.Positions["AAPL"].LongQuantity = 99

		require.Equal(t, 50.0, snapshot.Positions["AAPL"].LongQuantity)
	})
}
