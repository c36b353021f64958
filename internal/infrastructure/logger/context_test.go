package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T, ctx context.Context) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	FromContext(ctx).Info("hello")
	assert.Equal(t, 1, recorded.Len())
}

func TestContextValues(t *testing.T) {
	ctx := WithOrderID(WithRequestID(context.Background(), "req-1"), "order-9")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "order-9", GetOrderID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetOrderID(context.Background()))
}

func TestWithTraceContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithTraceContext(context.Background(), base).Info("no span")
	WithTraceContext(spanContext(t, context.Background()), base).Info("with span")

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[1].ContextMap()["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entries[1].ContextMap()["span_id"])
}

func TestContextLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-7")
	ctx = WithOrderID(ctx, "order-7")
	ctx = spanContext(t, ctx)

	cl := L(ctx).With(zap.String("component", "allocation"))
	cl.Debug("debug")
	cl.Info("info")
	cl.Warn("warn")
	cl.Error("error")
	cl.Zap().Info("zap")

	entries := recorded.All()
	require.Len(t, entries, 5)
	for _, e := range entries {
		fields := e.ContextMap()
		assert.Equal(t, "req-7", fields["request_id"], e.Message)
		assert.Equal(t, "order-7", fields["order_id"], e.Message)
		assert.Equal(t, "allocation", fields["component"], e.Message)
		assert.Contains(t, fields, "trace_id", e.Message)
	}

	t.Run("nil logger is safe", func(t *testing.T) {
		assert.NotPanics(t, func() {
			WithLogger(context.Background(), nil).With(zap.Int("n", 1)).Info("dropped")
		})
	})
}
