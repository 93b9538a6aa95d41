package eventmodels

import "time"

// PriceBar is one daily OHLCV bar. Timestamps are normalized to midnight UTC
// by the providers; trades execute at Close.
type PriceBar struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}
