package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDefault(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(l)
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestLoggerFromContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	withDefault(t, NewLogger(&buf, "info", "json"))

	ctx := WithSystemID(WithRequestID(context.Background(), "req-1"), "sys-1")
	LoggerFromContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "sys-1", line["system_id"])
}

func TestLoggerFromContextFallsBackToChiRequestID(t *testing.T) {
	var buf bytes.Buffer
	withDefault(t, NewLogger(&buf, "info", "json"))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "chi-7")
	LoggerFromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"request_id":"chi-7"`)
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "text")
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
