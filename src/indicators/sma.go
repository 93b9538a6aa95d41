package indicators

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Sma is a rolling simple moving average fed one close at a time.
type Sma struct {
	Period int
	closes []float64
}

func NewSma(period int) *Sma {
	return &Sma{
		Period: period,
	}
}

func (s *Sma) Update(close float64) (bool, float64, error) {
	if len(s.closes) < s.Period {
		s.closes = append(s.closes, close)

		if len(s.closes) < s.Period {
			return false, 0, nil
		}
	} else {
		s.closes = append(s.closes[1:], close)
	}

	mean, err := stats.Mean(s.closes)
	if err != nil {
		return false, 0, fmt.Errorf("failed to calculate mean: %v", err)
	}

	return true, mean, nil
}
