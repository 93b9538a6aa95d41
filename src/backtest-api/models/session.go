package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fundsim/fund-backtester/src/utils"
)

type BacktestRequest struct {
	Tickers           []string `json:"tickers"`
	Producers         []string `json:"selected_signal_producers"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	InitialCapital    float64  `json:"initial_capital"`
	MarginRequirement float64  `json:"margin_requirement"`
}

func (req *BacktestRequest) Validate() error {
	if len(req.Tickers) == 0 {
		return fmt.Errorf("tickers must not be empty")
	}

	for _, ticker := range req.Tickers {
		if ticker == "" {
			return fmt.Errorf("tickers must not contain empty symbols")
		}
	}

	if len(req.Producers) == 0 {
		return fmt.Errorf("producers must not be empty")
	}

	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start_date: %w", err)
	}

	end, err := utils.ParseDate(req.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end_date: %w", err)
	}

	if !start.Before(end) {
		return fmt.Errorf("start_date %s must be before end_date %s", req.StartDate, req.EndDate)
	}

	if req.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be greater than 0")
	}

	if req.MarginRequirement < 0 {
		return fmt.Errorf("margin_requirement must not be negative")
	}

	return nil
}

// Dates returns the parsed, UTC-normalized backtest range. Call Validate
// first; parse errors here mean the request was never validated.
func (req *BacktestRequest) Dates() (time.Time, time.Time, error) {
	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	end, err := utils.ParseDate(req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return start, end, nil
}

// BacktestSession is the engine's unit of work. All mutation happens on the
// session's runner goroutine; the registry hands out copies to readers.
type BacktestSession struct {
	ID            uuid.UUID       `json:"id"`
	Status        SessionStatus   `json:"status"`
	Request       BacktestRequest `json:"request"`
	CurrentDate   time.Time       `json:"current_date"`
	Progress      float64         `json:"progress"`
	CompletedDays int             `json:"completed_days"`
	TotalDays     int             `json:"total_days"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewBacktestSession(req BacktestRequest) *BacktestSession {
	return &BacktestSession{
		ID:        uuid.New(),
		Status:    SessionStatusPending,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *BacktestSession) TransitionTo(next SessionStatus) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}

	s.Status = next

	return nil
}

func (s *BacktestSession) AddWarning(warning string) {
	s.Warnings = append(s.Warnings, warning)
}

func (s *BacktestSession) Copy() *BacktestSession {
	copied := *s

	copied.Warnings = make([]string, len(s.Warnings))
	copy(copied.Warnings, s.Warnings)

	if s.ErrorMessage != nil {
		msg := *s.ErrorMessage
		copied.ErrorMessage = &msg
	}

	return &copied
}
