package eventmodels

import (
	"fmt"
	"time"
)

// CsvPriceBarDTO mirrors one row of a daily bar file with
// date,open,high,low,close,volume columns.
type CsvPriceBarDTO struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// ToModel parses the row into a PriceBar at midnight UTC. Dates may be plain
// 2006-01-02 or RFC3339.
func (c *CsvPriceBarDTO) ToModel(ticker string) (*PriceBar, error) {
	timestamp, err := time.Parse("2006-01-02", c.Date)
	if err != nil {
		timestamp, err = time.Parse(time.RFC3339, c.Date)
		if err != nil {
			return nil, fmt.Errorf("error parsing time %q: %v", c.Date, err)
		}
	}

	timestamp = time.Date(timestamp.Year(), timestamp.Month(), timestamp.Day(), 0, 0, 0, 0, time.UTC)

	return &PriceBar{
		Ticker:    ticker,
		Timestamp: timestamp,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}, nil
}
