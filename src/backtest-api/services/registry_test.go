package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fundsim/fund-backtester/src/backtest-api/mock"
	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

func newTestRegistry(t *testing.T) *SessionRegistry {
	t.Helper()

	dates := tradingCalendar(t, "2024-01-02", 3)
	provider := mock.NewMockBarProviderFromCloses("AAPL", dates, flatCloses(3, 100))
	bull := mock.NewMockProducer("bull", models.SignalDirectionBullish, 80)

	_, registry := newTestEngine(t, provider, bull)

	return registry
}

func TestSessionRegistry(t *testing.T) {
	t.Run("invalid request is a 400", func(t *testing.T) {
		registry := newTestRegistry(t)

		_, err := registry.CreateSession(context.Background(), models.BacktestRequest{})
		require.Error(t, err)

		var webErr *eventmodels.WebError
		require.ErrorAs(t, err, &webErr)
		require.Equal(t, http.StatusBadRequest, webErr.StatusCode)
		require.Contains(t, webErr.Message, "invalid backtest request")
	})

	t.Run("unknown producer is a 400", func(t *testing.T) {
		registry := newTestRegistry(t)

		request := newRunRequest([]string{"AAPL"}, []string{"ghost"}, "2024-01-02", "2024-01-04")
		_, err := registry.CreateSession(context.Background(), request)
		require.ErrorIs(t, err, models.ErrUnknownProducer)

		var webErr *eventmodels.WebError
		require.ErrorAs(t, err, &webErr)
		require.Equal(t, http.StatusBadRequest, webErr.StatusCode)
	})

	t.Run("created session runs to completion", func(t *testing.T) {
		registry := newTestRegistry(t)

		request := newRunRequest([]string{"AAPL"}, []string{"bull"}, "2024-01-02", "2024-01-04")
		session, err := registry.CreateSession(context.Background(), request)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusPending, session.Status)

		registry.Wait()

		finished, err := registry.GetSession(session.ID)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusCompleted, finished.Status)
		require.Equal(t, 3, finished.CompletedDays)

		result, err := registry.Result(session.ID)
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Len(t, result.Snapshots, 4)

		snapshots, err := registry.Snapshots(session.ID)
		require.NoError(t, err)
		require.Len(t, snapshots, 4)
	})

	t.Run("unknown session id is a 404", func(t *testing.T) {
		registry := newTestRegistry(t)

		_, err := registry.GetSession(uuid.New())
		require.ErrorIs(t, err, models.ErrSessionNotFound)

		var webErr *eventmodels.WebError
		require.ErrorAs(t, err, &webErr)
		require.Equal(t, http.StatusNotFound, webErr.StatusCode)
	})

	t.Run("get session hands out copies", func(t *testing.T) {
		registry := newTestRegistry(t)

		request := newRunRequest([]string{"AAPL"}, []string{"bull"}, "2024-01-02", "2024-01-04")
		session, err := registry.CreateSession(context.Background(), request)
		require.NoError(t, err)
		registry.Wait()

		first, err := registry.GetSession(session.ID)
		require.NoError(t, err)
		first.Status = models.SessionStatusPending
		first.AddWarning("mutated copy")

		second, err := registry.GetSession(session.ID)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusCompleted, second.Status)
		require.NotContains(t, second.Warnings, "mutated copy")
	})

	t.Run("cancel on a terminal session is a no-op", func(t *testing.T) {
		registry := newTestRegistry(t)

		request := newRunRequest([]string{"AAPL"}, []string{"bull"}, "2024-01-02", "2024-01-04")
		session, err := registry.CreateSession(context.Background(), request)
		require.NoError(t, err)
		registry.Wait()

		cancelled, err := registry.Cancel(session.ID)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusCompleted, cancelled.Status)
	})

	t.Run("cancel on an unknown session is a 404", func(t *testing.T) {
		registry := newTestRegistry(t)

		_, err := registry.Cancel(uuid.New())
		require.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("run sync returns the terminal result", func(t *testing.T) {
		registry := newTestRegistry(t)

		request := newRunRequest([]string{"AAPL"}, []string{"bull"}, "2024-01-02", "2024-01-04")
		result, err := registry.RunSync(context.Background(), request)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusCompleted, result.Session.Status)
		require.NotNil(t, result.Metrics)
		require.NotNil(t, result.FinalPortfolio)
	})

	t.Run("sessions list newest first", func(t *testing.T) {
		registry := newTestRegistry(t)

		request := newRunRequest([]string{"AAPL"}, []string{"bull"}, "2024-01-02", "2024-01-04")
		_, err := registry.RunSync(context.Background(), request)
		require.NoError(t, err)
		_, err = registry.RunSync(context.Background(), request)
		require.NoError(t, err)

		sessions := registry.GetSessions()
		require.Len(t, sessions, 2)
		require.False(t, sessions[0].CreatedAt.Before(sessions[1].CreatedAt))
	})

	t.Run("subscribe to an unknown session errors", func(t *testing.T) {
		registry := newTestRegistry(t)

		_, _, err := registry.Subscribe(uuid.New())
		require.Error(t, err)
		require.True(t, errors.Is(err, models.ErrSessionNotFound))
	})
}
