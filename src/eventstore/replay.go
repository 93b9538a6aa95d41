package eventstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

const readBatchSize = 4096

// ReadSession replays a recorded session's events in their original order. A
// session with no recorded stream maps to ErrSessionNotFound.
func ReadSession(ctx context.Context, client *esdb.Client, sessionID uuid.UUID) ([]eventmodels.BacktestEvent, error) {
	streamName := StreamName(sessionID)

	readOptions := esdb.ReadStreamOptions{
		Direction: esdb.Forwards,
		From:      esdb.Start{},
	}

	var events []eventmodels.BacktestEvent

	for {
		stream, err := client.ReadStream(ctx, streamName, readOptions, readBatchSize)
		if err != nil {
			if isStreamNotFound(err) {
				return nil, fmt.Errorf("%w: no recorded stream for %s", models.ErrSessionNotFound, sessionID)
			}
			return nil, fmt.Errorf("failed to read stream %s: %w", streamName, err)
		}

		batch := 0
		var lastEventNumber uint64

		for {
			resolved, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				if isStreamNotFound(err) {
					stream.Close()
					return nil, fmt.Errorf("%w: no recorded stream for %s", models.ErrSessionNotFound, sessionID)
				}
				stream.Close()
				return nil, fmt.Errorf("failed to read event from stream %s: %w", streamName, err)
			}

			event, err := eventmodels.DecodeBacktestEvent(eventmodels.BacktestEventType(resolved.Event.EventType), resolved.Event.Data)
			if err != nil {
				stream.Close()
				return nil, fmt.Errorf("failed to decode event %d: %w", resolved.Event.EventNumber, err)
			}

			events = append(events, event)
			lastEventNumber = resolved.Event.EventNumber
			batch++
		}
		stream.Close()

		if batch < readBatchSize {
			return events, nil
		}
		readOptions.From = esdb.Revision(lastEventNumber + 1)
	}
}
