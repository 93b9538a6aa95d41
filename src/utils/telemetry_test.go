package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContext(t *testing.T) {
	t.Run("round trips a span context and marks it remote", func(t *testing.T) {
		traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		require.NoError(t, err)

		spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
		require.NoError(t, err)

		original := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})

		data, err := SerializeTraceContext(original)
		require.NoError(t, err)

		restored, err := DeserializeTraceContext(data)
		require.NoError(t, err)
		require.Equal(t, original.TraceID(), restored.TraceID())
		require.Equal(t, original.SpanID(), restored.SpanID())
		require.Equal(t, original.TraceFlags(), restored.TraceFlags())
		require.True(t, restored.IsRemote())
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		_, err := DeserializeTraceContext([]byte("{not json"))
		require.ErrorContains(t, err, "failed to unmarshal trace context")
	})

	t.Run("rejects an invalid trace id", func(t *testing.T) {
		_, err := DeserializeTraceContext([]byte(`{"trace_id":"zz","span_id":"00f067aa0ba902b7"}`))
		require.ErrorContains(t, err, "failed to parse trace id")
	})
}
