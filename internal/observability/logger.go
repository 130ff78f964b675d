package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	shopperIDKey contextKey = "shopper_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger writing to stdout
func InitLogger(level, format string) {
	InitLoggerTo(os.Stdout, level, format)
}

// InitLoggerTo initializes the global structured logger writing to w
func InitLoggerTo(w io.Writer, level, format string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: strings.EqualFold(level, "debug"),
	}

	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// FromContext returns a logger with request and shopper attributes attached
func FromContext(ctx context.Context) *slog.Logger {
	base := logger
	if base == nil {
		base = slog.Default()
	}

	attrs := make([]any, 0, 2)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if shopperID, ok := ctx.Value(shopperIDKey).(string); ok && shopperID != "" {
		attrs = append(attrs, slog.String("shopper_id", shopperID))
	}

	if len(attrs) > 0 {
		return base.With(attrs...)
	}
	return base
}

// Component returns a logger tagged with the component name
func Component(ctx context.Context, name string) *slog.Logger {
	return FromContext(ctx).With(slog.String("component", name))
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithShopperID adds the signed-in shopper ID to context
func WithShopperID(ctx context.Context, shopperID string) context.Context {
	return context.WithValue(ctx, shopperIDKey, shopperID)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
