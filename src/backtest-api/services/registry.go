package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/eventpubsub"
	"github.com/fundsim/fund-backtester/src/strategy"
)

// SessionHandle is the registry's view of one session: the mutable session
// record, its event stream, the accumulated snapshot series, and the final
// result once the runner finishes. All access goes through the mutex except
// the cancel flag, which the runner polls at day boundaries.
type SessionHandle struct {
	mutex           sync.RWMutex
	session         *models.BacktestSession
	stream          *eventpubsub.Stream
	snapshots       []*models.DailySnapshot
	result          *models.BacktestResult
	cancelRequested atomic.Bool
}

func NewSessionHandle(session *models.BacktestSession, stream *eventpubsub.Stream) *SessionHandle {
	return &SessionHandle{
		session: session,
		stream:  stream,
	}
}

func (h *SessionHandle) ID() uuid.UUID {
	return h.session.ID
}

func (h *SessionHandle) Stream() *eventpubsub.Stream {
	return h.stream
}

// Session returns a copy safe to hand to callers.
func (h *SessionHandle) Session() *models.BacktestSession {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.session.Copy()
}

func (h *SessionHandle) Transition(next models.SessionStatus) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.session.TransitionTo(next)
}

// Fail records the cause and moves the session to failed in one step.
func (h *SessionHandle) Fail(cause error) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.session.TransitionTo(models.SessionStatusFailed); err != nil {
		return err
	}
	message := cause.Error()
	h.session.ErrorMessage = &message
	return nil
}

// Advance updates the day-loop bookkeeping after a date is processed.
func (h *SessionHandle) Advance(date time.Time, completedDays int, totalDays int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.session.CurrentDate = date
	h.session.CompletedDays = completedDays
	h.session.TotalDays = totalDays
	if totalDays > 0 {
		h.session.Progress = float64(completedDays) / float64(totalDays)
	}
}

func (h *SessionHandle) AddWarning(warning string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.session.AddWarning(warning)
}

func (h *SessionHandle) AppendSnapshot(snapshot *models.DailySnapshot) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.snapshots = append(h.snapshots, snapshot)
}

// Snapshots returns the series recorded so far, oldest first.
func (h *SessionHandle) Snapshots() []*models.DailySnapshot {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]*models.DailySnapshot, len(h.snapshots))
	copy(out, h.snapshots)
	return out
}

// LastSnapshot returns the most recent snapshot. The runner seeds the series
// before the day loop, so there is always at least one.
func (h *SessionHandle) LastSnapshot() *models.DailySnapshot {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.snapshots[len(h.snapshots)-1]
}

func (h *SessionHandle) RequestCancel() {
	h.cancelRequested.Store(true)
}

func (h *SessionHandle) CancelRequested() bool {
	return h.cancelRequested.Load()
}

func (h *SessionHandle) SetResult(result *models.BacktestResult) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.result = result
}

func (h *SessionHandle) Result() *models.BacktestResult {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.result
}

// SessionRegistry owns every session the engine has accepted. It validates
// requests, launches runners, and is the single lookup point for status,
// streaming, cancellation, and results.
type SessionRegistry struct {
	mutex     sync.RWMutex
	sessions  map[uuid.UUID]*SessionHandle
	runner    *Runner
	producers *strategy.ProducerRegistry
	buffer    int
	wg        sync.WaitGroup
}

func NewSessionRegistry(runner *Runner, producers *strategy.ProducerRegistry, config *eventmodels.EngineConfigYAML) *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[uuid.UUID]*SessionHandle),
		runner:    runner,
		producers: producers,
		buffer:    config.StreamBufferSize,
	}
}

// CreateSession validates the request, registers a pending session, and
// starts its runner on a fresh goroutine. The returned session is a copy.
func (s *SessionRegistry) CreateSession(ctx context.Context, request models.BacktestRequest) (*models.BacktestSession, error) {
	handle, err := s.register(request)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runner.Run(ctx, handle)
	}()

	return handle.Session(), nil
}

// RunSync registers the session and runs it on the calling goroutine,
// returning the terminal result. The session is registered first, so its
// stream and status stay reachable while it runs.
func (s *SessionRegistry) RunSync(ctx context.Context, request models.BacktestRequest) (*models.BacktestResult, error) {
	handle, err := s.register(request)
	if err != nil {
		return nil, err
	}

	s.runner.Run(ctx, handle)

	result := handle.Result()
	if result == nil {
		return nil, fmt.Errorf("session %s finished without a result", handle.ID())
	}
	return result, nil
}

func (s *SessionRegistry) register(request models.BacktestRequest) (*SessionHandle, error) {
	if err := request.Validate(); err != nil {
		return nil, eventmodels.NewWebError(http.StatusBadRequest, "invalid backtest request", err)
	}
	for _, producerID := range request.Producers {
		if _, found := s.producers.Get(producerID); !found {
			return nil, eventmodels.NewWebError(http.StatusBadRequest,
				fmt.Sprintf("unknown producer %s", producerID), models.ErrUnknownProducer)
		}
	}

	session := models.NewBacktestSession(request)
	handle := NewSessionHandle(session, eventpubsub.NewStream(session.ID, s.buffer))

	s.mutex.Lock()
	s.sessions[session.ID] = handle
	s.mutex.Unlock()

	log.Infof("SessionRegistry.register: session %s for %v from %s to %s", session.ID,
		request.Tickers, request.StartDate, request.EndDate)
	return handle, nil
}

func (s *SessionRegistry) handle(id uuid.UUID) (*SessionHandle, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	handle, found := s.sessions[id]
	if !found {
		return nil, eventmodels.NewWebError(http.StatusNotFound,
			fmt.Sprintf("session %s not found", id), models.ErrSessionNotFound)
	}
	return handle, nil
}

// GetSession returns a copy of the session's current state.
func (s *SessionRegistry) GetSession(id uuid.UUID) (*models.BacktestSession, error) {
	handle, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	return handle.Session(), nil
}

// GetSessions lists every known session, newest first.
func (s *SessionRegistry) GetSessions() []*models.BacktestSession {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sessions := make([]*models.BacktestSession, 0, len(s.sessions))
	for _, handle := range s.sessions {
		sessions = append(sessions, handle.Session())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

// Snapshots returns the session's recorded series so far.
func (s *SessionRegistry) Snapshots(id uuid.UUID) ([]*models.DailySnapshot, error) {
	handle, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	return handle.Snapshots(), nil
}

// Result returns the terminal result, or nil while the session still runs.
func (s *SessionRegistry) Result(id uuid.UUID) (*models.BacktestResult, error) {
	handle, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	return handle.Result(), nil
}

// Cancel requests cooperative cancellation. The runner observes the flag at
// the next day boundary; an already terminal session is left as is.
func (s *SessionRegistry) Cancel(id uuid.UUID) (*models.BacktestSession, error) {
	handle, err := s.handle(id)
	if err != nil {
		return nil, err
	}

	session := handle.Session()
	if session.Status.IsTerminal() {
		return session, nil
	}

	handle.RequestCancel()
	log.Infof("SessionRegistry.Cancel: cancellation requested for %s", id)
	return handle.Session(), nil
}

// Subscribe attaches a new consumer to the session's event stream.
func (s *SessionRegistry) Subscribe(id uuid.UUID) (uuid.UUID, <-chan eventmodels.BacktestEvent, error) {
	handle, err := s.handle(id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	subscriberID, events := handle.Stream().Subscribe()
	return subscriberID, events, nil
}

// Unsubscribe detaches a consumer registered via Subscribe.
func (s *SessionRegistry) Unsubscribe(id uuid.UUID, subscriberID uuid.UUID) {
	handle, err := s.handle(id)
	if err != nil {
		return
	}
	handle.Stream().Unsubscribe(subscriberID)
}

// Wait blocks until every launched runner has reached a terminal state.
func (s *SessionRegistry) Wait() {
	s.wg.Wait()
}
