package models

import "fmt"

type SignalDirection string

const (
	SignalDirectionBullish SignalDirection = "bullish"
	SignalDirectionBearish SignalDirection = "bearish"
	SignalDirectionNeutral SignalDirection = "neutral"
)

func (d SignalDirection) Validate() error {
	switch d {
	case SignalDirectionBullish, SignalDirectionBearish, SignalDirectionNeutral:
		return nil
	default:
		return fmt.Errorf("invalid signal direction: %s", d)
	}
}
