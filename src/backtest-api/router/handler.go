package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/backtest-api/services"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/strategy"
)

var (
	registry  *services.SessionRegistry
	producers *strategy.ProducerRegistry
	keepalive time.Duration
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func NewErrorResponse(errType string, message string) *errorResponse {
	return &errorResponse{
		Type: errType,
		Msg:  message,
	}
}

func setResponse(response interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("SetResponse: encode: %w", err)
	}

	return nil
}

func setErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := NewErrorResponse(errType, err.Error())
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		return encodeErr
	}

	return nil
}

// statusCode maps service errors onto HTTP codes, defaulting to 500.
func statusCode(err error) int {
	webError, ok := err.(*eventmodels.WebError)
	if ok {
		return webError.StatusCode
	}

	log.Warnf("failed to get status code from error: %v", err)
	return 500
}

func parseSessionID(r *http.Request) (uuid.UUID, error) {
	vars := mux.Vars(r)
	return uuid.Parse(vars["id"])
}

func handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(404)
		return
	}

	var req models.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		setErrorResponse("handleStart: failed to decode request", 400, err, w)
		return
	}

	response, err := startBacktest(r.Context(), &req)
	if err != nil {
		setErrorResponse("handleStart: failed to start backtest", statusCode(err), err, w)
		return
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleStart: failed to set response", 500, err, w)
		return
	}
}

func handleRunSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(404)
		return
	}

	var req models.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		setErrorResponse("handleRunSync: failed to decode request", 400, err, w)
		return
	}

	result, err := runBacktestSync(r.Context(), &req)
	if err != nil {
		setErrorResponse("handleRunSync: failed to run backtest", statusCode(err), err, w)
		return
	}

	if err := setResponse(result, w); err != nil {
		setErrorResponse("handleRunSync: failed to set response", 500, err, w)
		return
	}
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	id, err := parseSessionID(r)
	if err != nil {
		setErrorResponse("handleStatus: failed to parse session id", 400, err, w)
		return
	}

	status, err := getBacktestStatus(id)
	if err != nil {
		setErrorResponse("handleStatus: failed to get session", statusCode(err), err, w)
		return
	}

	if err := setResponse(status, w); err != nil {
		setErrorResponse("handleStatus: failed to set response", 500, err, w)
		return
	}
}

func handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != "DELETE" {
		w.WriteHeader(404)
		return
	}

	id, err := parseSessionID(r)
	if err != nil {
		setErrorResponse("handleSession: failed to parse session id", 400, err, w)
		return
	}

	response, err := cancelBacktest(id)
	if err != nil {
		setErrorResponse("handleSession: failed to cancel session", statusCode(err), err, w)
		return
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleSession: failed to set response", 500, err, w)
		return
	}
}

type snapshotsQuery struct {
	From  string `schema:"from"`
	To    string `schema:"to"`
	Limit int    `schema:"limit"`
}

func handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	id, err := parseSessionID(r)
	if err != nil {
		setErrorResponse("handleSnapshots: failed to parse session id", 400, err, w)
		return
	}

	if err := r.ParseForm(); err != nil {
		setErrorResponse("handleSnapshots: failed to parse form", 400, err, w)
		return
	}

	var query snapshotsQuery
	if err := schema.NewDecoder().Decode(&query, r.Form); err != nil {
		setErrorResponse("handleSnapshots: failed to decode query", 400, err, w)
		return
	}

	snapshots, err := getBacktestSnapshots(id, &query)
	if err != nil {
		setErrorResponse("handleSnapshots: failed to get snapshots", statusCode(err), err, w)
		return
	}

	response := map[string]interface{}{
		"backtest_id": id,
		"snapshots":   snapshots,
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleSnapshots: failed to set response", 500, err, w)
		return
	}
}

func handleProducers(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	response := map[string]interface{}{
		"producers": producers.List(),
	}

	if err := setResponse(response, w); err != nil {
		setErrorResponse("handleProducers: failed to set response", 500, err, w)
		return
	}
}

func handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(404)
		return
	}

	id, err := parseSessionID(r)
	if err != nil {
		setErrorResponse("handleStream: failed to parse session id", 400, err, w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		setErrorResponse("handleStream: streaming unsupported", 500, fmt.Errorf("response writer does not support flushing"), w)
		return
	}

	subscriberID, events, err := registry.Subscribe(id)
	if err != nil {
		setErrorResponse("handleStream: failed to subscribe", statusCode(err), err, w)
		return
	}
	defer registry.Unsubscribe(id, subscriberID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(200)
	flusher.Flush()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}

			frame, err := eventmodels.EncodeSSE(event)
			if err != nil {
				log.Errorf("handleStream: %v", err)
				continue
			}

			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, "event: keepalive\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		setErrorResponse("handleWebSocket: failed to parse session id", 400, err, w)
		return
	}

	subscriberID, events, err := registry.Subscribe(id)
	if err != nil {
		setErrorResponse("handleWebSocket: failed to subscribe", statusCode(err), err, w)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		registry.Unsubscribe(id, subscriberID)
		log.Errorf("handleWebSocket: failed to upgrade: %v", err)
		return
	}

	defer func() {
		registry.Unsubscribe(id, subscriberID)
		conn.Close()
	}()

	// drain reads so client close frames are processed
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				deadline := time.Now().UTC().Add(time.Second)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"), deadline)
				return
			}

			if err := conn.WriteJSON(event); err != nil {
				log.Errorf("handleWebSocket: failed to write event: %v", err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().UTC().Add(time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-clientGone:
			return

		case <-r.Context().Done():
			return
		}
	}
}

// SetupHandler mounts the backtest API onto the given subrouter.
func SetupHandler(router *mux.Router, sessionRegistry *services.SessionRegistry, producerRegistry *strategy.ProducerRegistry, config *eventmodels.EngineConfigYAML) {
	registry = sessionRegistry
	producers = producerRegistry
	keepalive = time.Duration(config.KeepaliveSeconds) * time.Second

	router.HandleFunc("/start", handleStart)
	router.HandleFunc("/run-sync", handleRunSync)
	router.HandleFunc("/producers", handleProducers)
	router.HandleFunc("/status/{id}", handleStatus)
	router.HandleFunc("/stream/{id}", handleStream)
	router.HandleFunc("/ws/{id}", handleWebSocket)
	router.HandleFunc("/{id}/snapshots", handleSnapshots)
	router.HandleFunc("/{id}", handleSession)
}
