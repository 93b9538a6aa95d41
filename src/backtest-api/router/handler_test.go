package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fundsim/fund-backtester/src/backtest-api/mock"
	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/backtest-api/services"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/eventpubsub"
	"github.com/fundsim/fund-backtester/src/strategy"
	"github.com/fundsim/fund-backtester/src/worker"
)

// newBacktestAPI mounts the handler on a fresh engine with a single always
// bullish producer registered as "bull".
func newBacktestAPI(t *testing.T, provider models.BarProvider) (*mux.Router, *services.SessionRegistry) {
	t.Helper()

	eventpubsub.Init()

	producerRegistry := strategy.NewProducerRegistry()
	require.NoError(t, producerRegistry.Register(mock.NewMockProducer("bull", models.SignalDirectionBullish, 80)))

	pool := worker.NewPool(4)
	pool.Start()
	t.Cleanup(pool.Stop)

	config := &eventmodels.EngineConfigYAML{
		MaxPositionShare:       0.5,
		LookbackDays:           5,
		WorkerPoolSize:         4,
		ProducerTimeoutSeconds: 5,
		ProducerRetries:        0,
		StreamBufferSize:       1024,
		KeepaliveSeconds:       15,
	}

	runner := services.NewRunner(provider, producerRegistry, pool, config)
	sessionRegistry := services.NewSessionRegistry(runner, producerRegistry, config)

	root := mux.NewRouter()
	SetupHandler(root.PathPrefix("/backtest").Subrouter(), sessionRegistry, producerRegistry, config)

	return root, sessionRegistry
}

// flatAaplProvider serves one flat AAPL bar per close starting 2024-01-02.
func flatAaplProvider(closes ...float64) *mock.MockBarProvider {
	dates := make([]time.Time, len(closes))
	for i := range closes {
		dates[i] = time.Date(2024, time.January, 2+i, 0, 0, 0, 0, time.UTC)
	}

	return mock.NewMockBarProviderFromCloses("AAPL", dates, closes)
}

func apiRequest() models.BacktestRequest {
	return models.BacktestRequest{
		Tickers:           []string{"AAPL"},
		Producers:         []string{"bull"},
		StartDate:         "2024-01-02",
		EndDate:           "2024-01-04",
		InitialCapital:    10000,
		MarginRequirement: 0.5,
	}
}

func doJSON(t *testing.T, router *mux.Router, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, path, body))

	return recorder
}

// startCompleted runs a session to completion through the API and returns its id.
func startCompleted(t *testing.T, router *mux.Router, sessions *services.SessionRegistry) uuid.UUID {
	t.Helper()

	recorder := doJSON(t, router, "POST", "/backtest/start", apiRequest())
	require.Equal(t, 200, recorder.Code)

	var started startResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &started))

	sessions.Wait()

	return started.BacktestID
}

func TestBacktestEndpoints(t *testing.T) {
	router, sessions := newBacktestAPI(t, flatAaplProvider(100, 100, 100))

	t.Run("start acknowledges the session and status reports completion", func(t *testing.T) {
		recorder := doJSON(t, router, "POST", "/backtest/start", apiRequest())
		require.Equal(t, 200, recorder.Code)
		require.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

		var started startResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &started))
		require.NotEqual(t, uuid.Nil, started.BacktestID)
		require.Equal(t, "started", started.Status)
		require.Equal(t, "/backtest/stream/"+started.BacktestID.String(), started.StreamURL)
		require.Equal(t, "/backtest/status/"+started.BacktestID.String(), started.StatusURL)

		sessions.Wait()

		recorder = doJSON(t, router, "GET", started.StatusURL, nil)
		require.Equal(t, 200, recorder.Code)

		var finished statusResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &finished))
		require.Equal(t, started.BacktestID, finished.BacktestID)
		require.Equal(t, models.SessionStatusCompleted, finished.Status)
		require.Equal(t, 3, finished.CompletedDays)
		require.Equal(t, 3, finished.TotalDays)
		require.Equal(t, 1.0, finished.Progress)
		require.Equal(t, "2024-01-04", finished.CurrentDate)
		require.False(t, finished.IsRunning)
		require.Equal(t, []string{"AAPL"}, finished.RequestSummary.Tickers)
		require.Equal(t, []string{"bull"}, finished.RequestSummary.Producers)
	})

	t.Run("start rejects an invalid request", func(t *testing.T) {
		request := apiRequest()
		request.Tickers = nil

		recorder := doJSON(t, router, "POST", "/backtest/start", request)
		require.Equal(t, 400, recorder.Code)
		require.Contains(t, recorder.Body.String(), "invalid backtest request")
	})

	t.Run("start rejects malformed json", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("POST", "/backtest/start", strings.NewReader("{not json")))

		require.Equal(t, 400, recorder.Code)
		require.Contains(t, recorder.Body.String(), "failed to decode request")
	})

	t.Run("start only accepts post", func(t *testing.T) {
		recorder := doJSON(t, router, "GET", "/backtest/start", nil)
		require.Equal(t, 404, recorder.Code)
	})

	t.Run("status rejects a malformed session id", func(t *testing.T) {
		recorder := doJSON(t, router, "GET", "/backtest/status/not-a-uuid", nil)
		require.Equal(t, 400, recorder.Code)
		require.Contains(t, recorder.Body.String(), "failed to parse session id")
	})

	t.Run("status returns 404 for an unknown session", func(t *testing.T) {
		recorder := doJSON(t, router, "GET", "/backtest/status/"+uuid.New().String(), nil)
		require.Equal(t, 404, recorder.Code)
		require.Contains(t, recorder.Body.String(), "not found")
	})

	t.Run("producers lists registered strategies", func(t *testing.T) {
		recorder := doJSON(t, router, "GET", "/backtest/producers", nil)
		require.Equal(t, 200, recorder.Code)

		var response struct {
			Producers []strategy.ProducerInfo `json:"producers"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Len(t, response.Producers, 1)
		require.Equal(t, "bull", response.Producers[0].ID)
		require.Equal(t, 1.0, response.Producers[0].Weight)
	})

	t.Run("run-sync returns the result inline", func(t *testing.T) {
		recorder := doJSON(t, router, "POST", "/backtest/run-sync", apiRequest())
		require.Equal(t, 200, recorder.Code)

		var result runSyncResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
		require.Equal(t, models.SessionStatusCompleted, result.Status)
		require.NotNil(t, result.PerformanceMetrics)
		require.Equal(t, 1, result.PerformanceMetrics.TotalTrades)
		require.Len(t, result.PortfolioHistory, 4)
		require.NotNil(t, result.FinalPortfolio)
		require.InDelta(t, 5000, result.FinalPortfolio.Cash, 1e-9)
	})

	t.Run("cancel is a no-op once the session is terminal", func(t *testing.T) {
		id := startCompleted(t, router, sessions)

		recorder := doJSON(t, router, "DELETE", "/backtest/"+id.String(), nil)
		require.Equal(t, 200, recorder.Code)

		var cancelled cancelResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &cancelled))
		require.Equal(t, id, cancelled.BacktestID)
		require.Equal(t, models.SessionStatusCompleted, cancelled.Status)
		require.Contains(t, cancelled.Message, "already")
	})

	t.Run("cancel returns 404 for an unknown session", func(t *testing.T) {
		recorder := doJSON(t, router, "DELETE", "/backtest/"+uuid.New().String(), nil)
		require.Equal(t, 404, recorder.Code)
	})

	t.Run("snapshots supports date and limit filters", func(t *testing.T) {
		id := startCompleted(t, router, sessions)
		base := "/backtest/" + id.String() + "/snapshots"

		var response struct {
			BacktestID uuid.UUID               `json:"backtest_id"`
			Snapshots  []*models.DailySnapshot `json:"snapshots"`
		}

		recorder := doJSON(t, router, "GET", base, nil)
		require.Equal(t, 200, recorder.Code)
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Equal(t, id, response.BacktestID)
		require.Len(t, response.Snapshots, 4)

		recorder = doJSON(t, router, "GET", base+"?from=2024-01-03&limit=1", nil)
		require.Equal(t, 200, recorder.Code)
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Len(t, response.Snapshots, 1)
		require.Equal(t, time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC), response.Snapshots[0].Date)

		recorder = doJSON(t, router, "GET", base+"?to=2024-01-02", nil)
		require.Equal(t, 200, recorder.Code)
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Len(t, response.Snapshots, 2)

		recorder = doJSON(t, router, "GET", base+"?from=nope", nil)
		require.Equal(t, 400, recorder.Code)
		require.Contains(t, recorder.Body.String(), "invalid from date")
	})
}

// gatedProvider holds the runner at the prefetch step until the gate closes,
// so a subscriber attached over HTTP sees the session from its first event.
type gatedProvider struct {
	models.BarProvider
	gate chan struct{}
}

func (p *gatedProvider) PrefetchRange(ctx context.Context, tickers []string, start, end time.Time) error {
	<-p.gate
	return p.BarProvider.PrefetchRange(ctx, tickers, start, end)
}

func TestStreamEndpoint(t *testing.T) {
	t.Run("streams a full session over sse", func(t *testing.T) {
		gate := make(chan struct{})
		router, _ := newBacktestAPI(t, &gatedProvider{BarProvider: flatAaplProvider(100, 100), gate: gate})

		server := httptest.NewServer(router)
		t.Cleanup(server.Close)

		request := apiRequest()
		request.EndDate = "2024-01-03"

		encoded, err := json.Marshal(request)
		require.NoError(t, err)

		resp, err := http.Post(server.URL+"/backtest/start", "application/json", bytes.NewReader(encoded))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, 200, resp.StatusCode)

		var started startResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

		stream, err := http.Get(server.URL + started.StreamURL)
		require.NoError(t, err)
		defer stream.Body.Close()
		require.Equal(t, 200, stream.StatusCode)
		require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

		// the subscriber is attached, let the runner go
		close(gate)

		var types []string
		scanner := bufio.NewScanner(stream.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				types = append(types, strings.TrimPrefix(line, "event: "))
			}
		}
		require.NoError(t, scanner.Err())

		require.Equal(t, []string{
			"backtest_start",
			"backtest_progress",
			"trading",
			"portfolio_update",
			"performance_update",
			"backtest_progress",
			"portfolio_update",
			"performance_update",
			"backtest_complete",
		}, types)
	})

	t.Run("terminal sessions close the stream immediately", func(t *testing.T) {
		router, sessions := newBacktestAPI(t, flatAaplProvider(100, 100, 100))
		id := startCompleted(t, router, sessions)

		recorder := doJSON(t, router, "GET", "/backtest/stream/"+id.String(), nil)
		require.Equal(t, 200, recorder.Code)
		require.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
		require.Empty(t, recorder.Body.String())
	})

	t.Run("returns 404 for an unknown session", func(t *testing.T) {
		router, _ := newBacktestAPI(t, flatAaplProvider(100, 100, 100))

		recorder := doJSON(t, router, "GET", "/backtest/stream/"+uuid.New().String(), nil)
		require.Equal(t, 404, recorder.Code)
	})
}

func TestWebSocketEndpoint(t *testing.T) {
	t.Run("closes cleanly for a terminal session", func(t *testing.T) {
		router, sessions := newBacktestAPI(t, flatAaplProvider(100, 100, 100))
		id := startCompleted(t, router, sessions)

		server := httptest.NewServer(router)
		t.Cleanup(server.Close)

		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/backtest/ws/" + id.String()
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, _, err = conn.ReadMessage()

		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		require.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
		require.Equal(t, "stream closed", closeErr.Text)
	})

	t.Run("rejects unknown sessions before upgrading", func(t *testing.T) {
		router, _ := newBacktestAPI(t, flatAaplProvider(100, 100, 100))

		server := httptest.NewServer(router)
		t.Cleanup(server.Close)

		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/backtest/ws/" + uuid.New().String()
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Nil(t, conn)
		require.Equal(t, 404, resp.StatusCode)
		resp.Body.Close()
	})
}
