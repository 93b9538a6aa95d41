package eventpubsub

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fundsim/fund-backtester/src/eventmodels"
)

func progressEvent(sessionID uuid.UUID, day int) *eventmodels.BacktestProgressEvent {
	date := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
	return eventmodels.NewBacktestProgressEvent(sessionID, date, day, 10, fmt.Sprintf("day %d", day))
}

func TestStream(t *testing.T) {
	t.Run("delivers events in publish order", func(t *testing.T) {
		sessionID := uuid.New()
		stream := NewStream(sessionID, 16)
		_, events := stream.Subscribe()

		for day := 0; day < 5; day++ {
			stream.Publish(progressEvent(sessionID, day))
		}
		stream.Close()

		var days []int
		for event := range events {
			progress, ok := event.(*eventmodels.BacktestProgressEvent)
			require.True(t, ok)
			days = append(days, progress.CompletedDays)
		}

		require.Equal(t, []int{0, 1, 2, 3, 4}, days)
	})

	t.Run("full buffer drops without blocking", func(t *testing.T) {
		sessionID := uuid.New()
		stream := NewStream(sessionID, 2)
		_, events := stream.Subscribe()

		for day := 0; day < 5; day++ {
			stream.Publish(progressEvent(sessionID, day))
		}
		stream.Close()

		var days []int
		for event := range events {
			days = append(days, event.(*eventmodels.BacktestProgressEvent).CompletedDays)
		}

		// the two oldest events fit, the rest were dropped
		require.Equal(t, []int{0, 1}, days)
	})

	t.Run("close keeps buffered events readable", func(t *testing.T) {
		sessionID := uuid.New()
		stream := NewStream(sessionID, 16)
		_, events := stream.Subscribe()

		stream.Publish(progressEvent(sessionID, 0))
		stream.Close()

		event, open := <-events
		require.True(t, open)
		require.Equal(t, eventmodels.BacktestEventTypeProgress, event.GetType())

		_, open = <-events
		require.False(t, open)
	})

	t.Run("subscribe after close yields a closed channel", func(t *testing.T) {
		stream := NewStream(uuid.New(), 16)
		stream.Close()

		_, events := stream.Subscribe()
		_, open := <-events
		require.False(t, open)
	})

	t.Run("unsubscribe closes only that consumer", func(t *testing.T) {
		sessionID := uuid.New()
		stream := NewStream(sessionID, 16)

		first, firstEvents := stream.Subscribe()
		_, secondEvents := stream.Subscribe()
		require.Equal(t, 2, stream.SubscriberCount())

		stream.Unsubscribe(first)
		require.Equal(t, 1, stream.SubscriberCount())

		_, open := <-firstEvents
		require.False(t, open)

		stream.Publish(progressEvent(sessionID, 0))
		stream.Close()

		var count int
		for range secondEvents {
			count++
		}
		require.Equal(t, 1, count)
	})

	t.Run("subscribers own independent buffers", func(t *testing.T) {
		sessionID := uuid.New()
		stream := NewStream(sessionID, 2)

		_, slow := stream.Subscribe()
		_, fast := stream.Subscribe()

		// fill both buffers, then drain one and keep publishing
		stream.Publish(progressEvent(sessionID, 0))
		stream.Publish(progressEvent(sessionID, 1))
		<-fast
		<-fast
		stream.Publish(progressEvent(sessionID, 2))
		stream.Close()

		var fastDays []int
		for event := range fast {
			fastDays = append(fastDays, event.(*eventmodels.BacktestProgressEvent).CompletedDays)
		}
		require.Equal(t, []int{2}, fastDays)

		var slowDays []int
		for event := range slow {
			slowDays = append(slowDays, event.(*eventmodels.BacktestProgressEvent).CompletedDays)
		}
		require.Equal(t, []int{0, 1}, slowDays)
	})

	t.Run("publish after close is a no-op", func(t *testing.T) {
		sessionID := uuid.New()
		stream := NewStream(sessionID, 16)
		_, events := stream.Subscribe()

		stream.Close()
		stream.Publish(progressEvent(sessionID, 0))
		stream.Close()

		var count int
		for range events {
			count++
		}
		require.Equal(t, 0, count)
	})
}
