package utils

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

func GetMinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}

	return b
}

func GetMaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}

	return b
}

// NormalizeDate truncates a timestamp to midnight UTC. Market dates are
// compared at day granularity throughout the engine.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", value, err)
	}

	return NormalizeDate(t), nil
}

func IsWeekend(t time.Time) bool {
	weekday := t.Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// WeekdaysBetween returns the weekday dates in [start, end], inclusive,
// normalized to midnight UTC and sorted ascending.
func WeekdaysBetween(start, end time.Time) []time.Time {
	var days []time.Time

	for d := NormalizeDate(start); !d.After(NormalizeDate(end)); d = d.AddDate(0, 0, 1) {
		if IsWeekend(d) {
			continue
		}

		days = append(days, d)
	}

	return days
}
