// Package logging carries request-scoped loggers through contexts and fans
// slog records out to multiple handlers.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type loggerContextKey struct{}

// WithLogger stores logger in ctx so downstream code picks up the
// request-scoped attributes attached by middleware.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext returns the logger carried by ctx, falling back to the given
// logger and finally to a discard logger.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
