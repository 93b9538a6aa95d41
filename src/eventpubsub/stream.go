package eventpubsub

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fundsim/fund-backtester/src/eventmodels"
)

type streamSubscriber struct {
	ch      chan eventmodels.BacktestEvent
	dropped uint64
}

// Stream fans a session's events out to its subscribers. Publish never
// blocks: each subscriber owns a bounded buffer and a full buffer drops the
// event for that subscriber only. The runner goroutine is the sole
// publisher, so per-subscriber delivery order matches emission order.
type Stream struct {
	sessionID   uuid.UUID
	bufferSize  int
	mutex       sync.RWMutex
	subscribers map[uuid.UUID]*streamSubscriber
	closed      bool
}

func NewStream(sessionID uuid.UUID, bufferSize int) *Stream {
	return &Stream{
		sessionID:   sessionID,
		bufferSize:  bufferSize,
		subscribers: make(map[uuid.UUID]*streamSubscriber),
	}
}

// Subscribe attaches a new consumer. There is no replay: the channel only
// sees events published after this call. Subscribing to a closed stream
// returns an already-closed channel.
func (s *Stream) Subscribe() (uuid.UUID, <-chan eventmodels.BacktestEvent) {
	subscriberID := uuid.New()
	ch := make(chan eventmodels.BacktestEvent, s.bufferSize)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		close(ch)
		return subscriberID, ch
	}

	s.subscribers[subscriberID] = &streamSubscriber{ch: ch}

	return subscriberID, ch
}

func (s *Stream) Unsubscribe(subscriberID uuid.UUID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	subscriber, found := s.subscribers[subscriberID]
	if !found {
		return
	}

	delete(s.subscribers, subscriberID)
	close(subscriber.ch)
}

func (s *Stream) Publish(event eventmodels.BacktestEvent) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return
	}

	for subscriberID, subscriber := range s.subscribers {
		select {
		case subscriber.ch <- event:
		default:
			subscriber.dropped++
			if subscriber.dropped == 1 || subscriber.dropped%100 == 0 {
				log.WithFields(log.Fields{
					"session_id":    s.sessionID,
					"subscriber_id": subscriberID,
					"dropped":       subscriber.dropped,
				}).Warnf("stream: subscriber buffer full, dropping %s event", event.GetType())
			}
		}
	}
}

// Close ends the stream after the terminal event. Buffered events remain
// readable; the closed channels signal end-of-stream to consumers.
func (s *Stream) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	for subscriberID, subscriber := range s.subscribers {
		delete(s.subscribers, subscriberID)
		close(subscriber.ch)
	}
}

func (s *Stream) SubscriberCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.subscribers)
}
