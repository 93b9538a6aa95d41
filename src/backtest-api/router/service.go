package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/utils"
)

type startResponse struct {
	BacktestID uuid.UUID `json:"backtest_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	StreamURL  string    `json:"stream_url"`
	StatusURL  string    `json:"status_url"`
}

type requestSummary struct {
	Tickers        []string `json:"tickers"`
	Producers      []string `json:"producers"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	InitialCapital float64  `json:"initial_capital"`
}

type statusResponse struct {
	BacktestID     uuid.UUID            `json:"backtest_id"`
	Status         models.SessionStatus `json:"status"`
	Progress       float64              `json:"progress"`
	CurrentDate    string               `json:"current_date,omitempty"`
	CompletedDays  int                  `json:"completed_days"`
	TotalDays      int                  `json:"total_days"`
	StartTime      time.Time            `json:"start_time"`
	IsRunning      bool                 `json:"is_running"`
	ErrorMessage   *string              `json:"error_message,omitempty"`
	Warnings       []string             `json:"warnings,omitempty"`
	RequestSummary requestSummary       `json:"request_summary"`
}

type cancelResponse struct {
	BacktestID uuid.UUID            `json:"backtest_id"`
	Status     models.SessionStatus `json:"status"`
	Message    string               `json:"message"`
}

type runSyncResponse struct {
	Status             models.SessionStatus       `json:"status"`
	PerformanceMetrics *models.PerformanceMetrics `json:"performance_metrics"`
	PortfolioHistory   []*models.DailySnapshot    `json:"portfolio_history"`
	FinalPortfolio     *models.Portfolio          `json:"final_portfolio"`
}

func startBacktest(ctx context.Context, req *models.BacktestRequest) (*startResponse, error) {
	if req == nil {
		return nil, eventmodels.NewWebError(400, "missing request body", nil)
	}

	// the runner outlives the start request
	session, err := registry.CreateSession(context.Background(), *req)
	if err != nil {
		return nil, err
	}

	return &startResponse{
		BacktestID: session.ID,
		Status:     "started",
		Message:    "backtest started, subscribe to the stream for updates",
		StreamURL:  fmt.Sprintf("/backtest/stream/%s", session.ID),
		StatusURL:  fmt.Sprintf("/backtest/status/%s", session.ID),
	}, nil
}

func runBacktestSync(ctx context.Context, req *models.BacktestRequest) (*runSyncResponse, error) {
	if req == nil {
		return nil, eventmodels.NewWebError(400, "missing request body", nil)
	}

	result, err := registry.RunSync(ctx, *req)
	if err != nil {
		return nil, err
	}

	return &runSyncResponse{
		Status:             result.Session.Status,
		PerformanceMetrics: result.Metrics,
		PortfolioHistory:   result.Snapshots,
		FinalPortfolio:     result.FinalPortfolio,
	}, nil
}

func getBacktestStatus(id uuid.UUID) (*statusResponse, error) {
	session, err := registry.GetSession(id)
	if err != nil {
		return nil, err
	}

	response := &statusResponse{
		BacktestID:    session.ID,
		Status:        session.Status,
		Progress:      session.Progress,
		CompletedDays: session.CompletedDays,
		TotalDays:     session.TotalDays,
		StartTime:     session.CreatedAt,
		IsRunning:     !session.Status.IsTerminal(),
		ErrorMessage:  session.ErrorMessage,
		Warnings:      session.Warnings,
		RequestSummary: requestSummary{
			Tickers:        session.Request.Tickers,
			Producers:      session.Request.Producers,
			StartDate:      session.Request.StartDate,
			EndDate:        session.Request.EndDate,
			InitialCapital: session.Request.InitialCapital,
		},
	}
	if !session.CurrentDate.IsZero() {
		response.CurrentDate = session.CurrentDate.Format(utils.DateLayout)
	}

	return response, nil
}

func cancelBacktest(id uuid.UUID) (*cancelResponse, error) {
	session, err := registry.Cancel(id)
	if err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		return &cancelResponse{
			BacktestID: session.ID,
			Status:     session.Status,
			Message:    fmt.Sprintf("session already %s", session.Status),
		}, nil
	}

	return &cancelResponse{
		BacktestID: session.ID,
		Status:     models.SessionStatusCancelled,
		Message:    "cancellation requested",
	}, nil
}

func getBacktestSnapshots(id uuid.UUID, query *snapshotsQuery) ([]*models.DailySnapshot, error) {
	snapshots, err := registry.Snapshots(id)
	if err != nil {
		return nil, err
	}

	if query.From != "" {
		from, err := utils.ParseDate(query.From)
		if err != nil {
			return nil, eventmodels.NewWebError(400, fmt.Sprintf("invalid from date %q", query.From), err)
		}
		filtered := snapshots[:0]
		for _, snapshot := range snapshots {
			if !snapshot.Date.Before(from) {
				filtered = append(filtered, snapshot)
			}
		}
		snapshots = filtered
	}

	if query.To != "" {
		to, err := utils.ParseDate(query.To)
		if err != nil {
			return nil, eventmodels.NewWebError(400, fmt.Sprintf("invalid to date %q", query.To), err)
		}
		filtered := snapshots[:0]
		for _, snapshot := range snapshots {
			if !snapshot.Date.After(to) {
				filtered = append(filtered, snapshot)
			}
		}
		snapshots = filtered
	}

	if query.Limit > 0 && len(snapshots) > query.Limit {
		snapshots = snapshots[len(snapshots)-query.Limit:]
	}

	return snapshots, nil
}
