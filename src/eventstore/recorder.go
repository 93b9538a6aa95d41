package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/utils"
)

const appendTimeout = 5 * time.Second

// StreamName returns the EventStoreDB stream holding a session's events.
func StreamName(sessionID uuid.UUID) string {
	return fmt.Sprintf("backtest-%s", sessionID)
}

// Recorder appends every emitted session event to EventStoreDB, one stream
// per session, in emission order. Recording is fire-and-forget from the
// engine's point of view; a failed append never stalls the day loop.
type Recorder struct {
	client *esdb.Client
}

func NewRecorder(client *esdb.Client) *Recorder {
	return &Recorder{client: client}
}

// Record appends one event to the session's stream. The emitting span's
// context rides along as event metadata.
func (r *Recorder) Record(ctx context.Context, event eventmodels.BacktestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	var metadata []byte
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		metadata, err = utils.SerializeTraceContext(span.SpanContext())
		if err != nil {
			log.Warnf("Recorder.Record: %v", err)
			metadata = nil
		}
	}

	eventData := esdb.EventData{
		ContentType: esdb.ContentTypeJson,
		EventType:   string(event.GetType()),
		Data:        data,
		Metadata:    metadata,
	}

	appendCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	_, err = r.client.AppendToStream(appendCtx, StreamName(event.GetSessionID()), esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		return fmt.Errorf("failed to append event to stream: %w", err)
	}

	return nil
}
