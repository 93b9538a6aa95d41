package utils

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// TraceContextDTO is the wire form of a span context stored in the metadata
// of recorded backtest events, tying a replayed stream back to the trace that
// produced it.
type TraceContextDTO struct {
	TraceID    string `json:"trace_id"`
	SpanID     string `json:"span_id"`
	TraceFlags byte   `json:"trace_flags"`
	TraceState string `json:"trace_state"`
}

func SerializeTraceContext(sc trace.SpanContext) ([]byte, error) {
	dto := TraceContextDTO{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trace context: %w", err)
	}

	return data, nil
}

// DeserializeTraceContext restores a span context written by
// SerializeTraceContext. The restored context is marked remote because it
// crossed the event store.
func DeserializeTraceContext(data []byte) (trace.SpanContext, error) {
	var dto TraceContextDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return trace.SpanContext{}, fmt.Errorf("failed to unmarshal trace context: %w", err)
	}

	traceID, err := trace.TraceIDFromHex(dto.TraceID)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("failed to parse trace id %q: %w", dto.TraceID, err)
	}

	spanID, err := trace.SpanIDFromHex(dto.SpanID)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("failed to parse span id %q: %w", dto.SpanID, err)
	}

	traceState, err := trace.ParseTraceState(dto.TraceState)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("failed to parse trace state %q: %w", dto.TraceState, err)
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.TraceFlags(dto.TraceFlags),
		TraceState: traceState,
		Remote:     true,
	}), nil
}
