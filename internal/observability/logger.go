// Package observability builds the process logger and request-scoped loggers.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeySystemID  ctxKey = "system_id"
)

// NewLogger returns a slog logger writing to w in the given format ("json" or
// "text") at the given level ("debug", "info", "warn", "error").
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// WithSystemID stores a system_id in the context.
func WithSystemID(ctx context.Context, systemID string) context.Context {
	return context.WithValue(ctx, ctxKeySystemID, systemID)
}

// LoggerFromContext returns the default logger enriched with request_id
// (ours or chi's) and system_id when present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	if reqID == "" {
		reqID = middleware.GetReqID(ctx)
	}
	if reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if systemID, _ := ctx.Value(ctxKeySystemID).(string); systemID != "" {
		logger = logger.With("system_id", systemID)
	}
	return logger
}
