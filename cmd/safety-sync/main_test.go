package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		prefixed string
		plain    string
		want     slog.Level
	}{
		{name: "unset", want: slog.LevelInfo},
		{name: "prefixed debug", prefixed: "debug", want: slog.LevelDebug},
		{name: "plain fallback", plain: "warning", want: slog.LevelWarn},
		{name: "prefixed wins", prefixed: "error", plain: "debug", want: slog.LevelError},
		{name: "case insensitive", prefixed: "DEBUG", want: slog.LevelDebug},
		{name: "invalid", prefixed: "loud", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SAFETY_SYNC_LOG_LEVEL", tt.prefixed)
			t.Setenv("LOG_LEVEL", tt.plain)
			assert.Equal(t, tt.want, getLogLevel())
		})
	}
}

func TestZapLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, zapcore.Level(-4), zapLevel(slog.LevelDebug))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(slog.LevelInfo))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(slog.LevelWarn))
	assert.Equal(t, zapcore.ErrorLevel, zapLevel(slog.LevelError))
}

type captureHandler struct {
	slog.Handler
	attrs map[string]string
}

func (c *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (c *captureHandler) Handle(_ context.Context, r slog.Record) error {
	c.attrs = map[string]string{}
	r.Attrs(func(a slog.Attr) bool {
		c.attrs[a.Key] = a.Value.String()
		return true
	})
	return nil
}

func TestTraceHandlerInjectsSpanContext(t *testing.T) {
	t.Parallel()

	inner := &captureHandler{Handler: slog.DiscardHandler}
	logger := slog.New(&traceHandler{Handler: inner})

	logger.InfoContext(context.Background(), "no span")
	assert.NotContains(t, inner.attrs, "trace_id")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "with span")
	require.Contains(t, inner.attrs, "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), inner.attrs["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), inner.attrs["span_id"])
}

func TestNewLogHandler(t *testing.T) {
	t.Parallel()
	handler, flush, err := newLogHandler(slog.LevelDebug)
	require.NoError(t, err)
	defer flush()
	assert.True(t, handler.Enabled(context.Background(), slog.LevelDebug))
}
