package eventmodels

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PositionDTO struct {
	LongQuantity   float64 `json:"long_quantity"`
	ShortQuantity  float64 `json:"short_quantity"`
	LongCostBasis  float64 `json:"long_cost_basis"`
	ShortCostBasis float64 `json:"short_cost_basis"`
}

type SnapshotDTO struct {
	Date        string  `json:"date"`
	Cash        float64 `json:"cash"`
	TotalValue  float64 `json:"total_value"`
	DailyReturn float64 `json:"daily_return"`
}

type PerformanceDTO struct {
	TotalReturn    float64 `json:"total_return"`
	FinalValue     float64 `json:"final_value"`
	InitialCapital float64 `json:"initial_capital"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
}

type BacktestStartEvent struct {
	BaseEvent
	Tickers   []string `json:"tickers"`
	TotalDays int      `json:"total_days"`
}

func NewBacktestStartEvent(sessionID uuid.UUID, tickers []string, totalDays int) *BacktestStartEvent {
	return &BacktestStartEvent{
		BaseEvent: NewBaseEvent(BacktestEventTypeStart, sessionID),
		Tickers:   tickers,
		TotalDays: totalDays,
	}
}

type BacktestProgressEvent struct {
	BaseEvent
	CurrentDate   string  `json:"current_date"`
	Progress      float64 `json:"progress"`
	CompletedDays int     `json:"completed_days"`
	TotalDays     int     `json:"total_days"`
	Message       string  `json:"message"`
}

func NewBacktestProgressEvent(sessionID uuid.UUID, currentDate time.Time, completedDays int, totalDays int, message string) *BacktestProgressEvent {
	progress := 0.0
	if totalDays > 0 {
		progress = float64(completedDays) / float64(totalDays)
	}

	return &BacktestProgressEvent{
		BaseEvent:     NewBaseEvent(BacktestEventTypeProgress, sessionID),
		CurrentDate:   currentDate.Format("2006-01-02"),
		Progress:      progress,
		CompletedDays: completedDays,
		TotalDays:     totalDays,
		Message:       message,
	}
}

type TradingEvent struct {
	BaseEvent
	Date           string  `json:"date"`
	Ticker         string  `json:"ticker"`
	Action         string  `json:"action"`
	Quantity       float64 `json:"quantity"`
	Price          float64 `json:"price"`
	PortfolioValue float64 `json:"portfolio_value"`
}

func NewTradingEvent(sessionID uuid.UUID, date time.Time, ticker string, action string, quantity float64, price float64, portfolioValue float64) *TradingEvent {
	return &TradingEvent{
		BaseEvent:      NewBaseEvent(BacktestEventTypeTrading, sessionID),
		Date:           date.Format("2006-01-02"),
		Ticker:         ticker,
		Action:         action,
		Quantity:       quantity,
		Price:          price,
		PortfolioValue: portfolioValue,
	}
}

type PortfolioUpdateEvent struct {
	BaseEvent
	Date        string                  `json:"date"`
	Cash        float64                 `json:"cash"`
	TotalValue  float64                 `json:"total_value"`
	DailyReturn float64                 `json:"daily_return"`
	Positions   map[string]*PositionDTO `json:"positions"`
}

func NewPortfolioUpdateEvent(sessionID uuid.UUID, date time.Time, cash float64, totalValue float64, dailyReturn float64, positions map[string]*PositionDTO) *PortfolioUpdateEvent {
	return &PortfolioUpdateEvent{
		BaseEvent:   NewBaseEvent(BacktestEventTypePortfolioUpdate, sessionID),
		Date:        date.Format("2006-01-02"),
		Cash:        cash,
		TotalValue:  totalValue,
		DailyReturn: dailyReturn,
		Positions:   positions,
	}
}

type PerformanceUpdateEvent struct {
	BaseEvent
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

func NewPerformanceUpdateEvent(sessionID uuid.UUID, totalReturn float64, sharpeRatio float64, sortinoRatio float64, maxDrawdown float64) *PerformanceUpdateEvent {
	return &PerformanceUpdateEvent{
		BaseEvent:    NewBaseEvent(BacktestEventTypePerformanceUpdate, sessionID),
		TotalReturn:  totalReturn,
		SharpeRatio:  sharpeRatio,
		SortinoRatio: sortinoRatio,
		MaxDrawdown:  maxDrawdown,
	}
}

type BacktestCompleteEvent struct {
	BaseEvent
	FinalPerformance *PerformanceDTO `json:"final_performance"`
	Snapshots        []*SnapshotDTO  `json:"snapshots"`
}

func NewBacktestCompleteEvent(sessionID uuid.UUID, performance *PerformanceDTO, snapshots []*SnapshotDTO) *BacktestCompleteEvent {
	return &BacktestCompleteEvent{
		BaseEvent:        NewBaseEvent(BacktestEventTypeComplete, sessionID),
		FinalPerformance: performance,
		Snapshots:        snapshots,
	}
}

type BacktestErrorEvent struct {
	BaseEvent
	Message string `json:"message"`
}

func NewBacktestErrorEvent(sessionID uuid.UUID, message string) *BacktestErrorEvent {
	return &BacktestErrorEvent{
		BaseEvent: NewBaseEvent(BacktestEventTypeError, sessionID),
		Message:   message,
	}
}

// DecodeBacktestEvent rebuilds a typed event from its wire form. Used when
// replaying recorded streams.
func DecodeBacktestEvent(eventType BacktestEventType, data []byte) (BacktestEvent, error) {
	var event BacktestEvent

	switch eventType {
	case BacktestEventTypeStart:
		event = &BacktestStartEvent{}
	case BacktestEventTypeProgress:
		event = &BacktestProgressEvent{}
	case BacktestEventTypeTrading:
		event = &TradingEvent{}
	case BacktestEventTypePortfolioUpdate:
		event = &PortfolioUpdateEvent{}
	case BacktestEventTypePerformanceUpdate:
		event = &PerformanceUpdateEvent{}
	case BacktestEventTypeComplete:
		event = &BacktestCompleteEvent{}
	case BacktestEventTypeError:
		event = &BacktestErrorEvent{}
	default:
		return nil, fmt.Errorf("DecodeBacktestEvent: invalid event type: %s", eventType)
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("DecodeBacktestEvent: failed to unmarshal %s: %w", eventType, err)
	}

	return event, nil
}
