package models

import "fmt"

// Signal is a single producer's opinion on a ticker for one trading day.
// Reasoning is descriptive only and never feeds back into any calculation.
type Signal struct {
	ProducerID string          `json:"producer_id"`
	Ticker     string          `json:"ticker"`
	Direction  SignalDirection `json:"direction"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

func NewSignal(producerID string, ticker string, direction SignalDirection, confidence float64, reasoning string) *Signal {
	return &Signal{
		ProducerID: producerID,
		Ticker:     ticker,
		Direction:  direction,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}

func (s *Signal) Validate() error {
	if err := s.Direction.Validate(); err != nil {
		return err
	}

	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("invalid confidence %.2f: must be between 0 and 100", s.Confidence)
	}

	return nil
}
