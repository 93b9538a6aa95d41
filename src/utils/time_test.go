package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Run("parses to midnight utc", func(t *testing.T) {
		date, err := ParseDate("2024-01-02")
		require.NoError(t, err)
		require.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), date)
	})

	t.Run("rejects other layouts", func(t *testing.T) {
		_, err := ParseDate("01/02/2024")
		require.ErrorContains(t, err, `failed to parse date "01/02/2024"`)
	})
}

func TestNormalizeDate(t *testing.T) {
	eastern := time.FixedZone("EST", -5*3600)
	stamp := time.Date(2024, time.January, 2, 18, 30, 45, 123, eastern)

	normalized := NormalizeDate(stamp)
	require.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), normalized)
}

func TestIsWeekend(t *testing.T) {
	require.False(t, IsWeekend(time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)))
	require.True(t, IsWeekend(time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)))
	require.True(t, IsWeekend(time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC)))
	require.False(t, IsWeekend(time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)))
}

func TestWeekdaysBetween(t *testing.T) {
	t.Run("inclusive and weekend free", func(t *testing.T) {
		start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)

		days := WeekdaysBetween(start, end)
		require.Len(t, days, 10)
		require.Equal(t, start, days[0])
		require.Equal(t, time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC), days[len(days)-1])
	})

	t.Run("empty when the range is inverted", func(t *testing.T) {
		start := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
		require.Empty(t, WeekdaysBetween(start, start.AddDate(0, 0, -1)))
	})

	t.Run("single weekday range returns that day", func(t *testing.T) {
		day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
		require.Equal(t, []time.Time{day}, WeekdaysBetween(day, day))
	})
}

func TestMinMaxTime(t *testing.T) {
	earlier := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	later := earlier.AddDate(0, 0, 5)

	require.Equal(t, earlier, GetMinTime(earlier, later))
	require.Equal(t, earlier, GetMinTime(later, earlier))
	require.Equal(t, later, GetMaxTime(earlier, later))
	require.Equal(t, later, GetMaxTime(later, earlier))
}
