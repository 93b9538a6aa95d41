package eventmodels

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BacktestEventType string

const (
	BacktestEventTypeStart             BacktestEventType = "backtest_start"
	BacktestEventTypeProgress          BacktestEventType = "backtest_progress"
	BacktestEventTypeTrading           BacktestEventType = "trading"
	BacktestEventTypePortfolioUpdate   BacktestEventType = "portfolio_update"
	BacktestEventTypePerformanceUpdate BacktestEventType = "performance_update"
	BacktestEventTypeComplete          BacktestEventType = "backtest_complete"
	BacktestEventTypeError             BacktestEventType = "error"
)

func (t BacktestEventType) Validate() error {
	switch t {
	case BacktestEventTypeStart, BacktestEventTypeProgress, BacktestEventTypeTrading,
		BacktestEventTypePortfolioUpdate, BacktestEventTypePerformanceUpdate,
		BacktestEventTypeComplete, BacktestEventTypeError:
		return nil
	default:
		return fmt.Errorf("invalid backtest event type: %s", t)
	}
}

// BacktestEvent is the closed set of messages a session publishes to its
// stream. Every event carries the session id and a UTC timestamp.
type BacktestEvent interface {
	GetType() BacktestEventType
	GetSessionID() uuid.UUID
	GetTimestamp() time.Time
}

type BaseEvent struct {
	Type      BacktestEventType `json:"type"`
	SessionID uuid.UUID         `json:"backtest_id"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewBaseEvent(eventType BacktestEventType, sessionID uuid.UUID) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

func (e BaseEvent) GetType() BacktestEventType {
	return e.Type
}

func (e BaseEvent) GetSessionID() uuid.UUID {
	return e.SessionID
}

func (e BaseEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

// EncodeSSE renders an event as one server-sent-events frame.
func EncodeSSE(event BacktestEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("EncodeSSE: failed to marshal event: %w", err)
	}

	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.GetType(), data)), nil
}
