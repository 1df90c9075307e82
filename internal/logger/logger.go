// Package logger sets up JSON structured logging with log/slog and carries
// a request ID through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Init creates a JSON logger on stdout tagged with service and makes it the
// slog default.
func Init(service string, level slog.Level) *slog.Logger {
	logger := New(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

// New creates a JSON logger writing to w.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel maps debug, info, warn/warning and error to a level. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithRequestID stores a request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from context. Returns "" if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// NewRequestID builds "{prefix}-{unixNano}".
func NewRequestID(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, ts.UnixNano())
}

// Attrs returns slog attributes for the request ID in ctx, if any.
// Usage: logger.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	id := RequestID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("request_id", id)}
}
