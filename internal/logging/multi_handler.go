package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

type fanoutHandler struct {
	targets []slog.Handler
}

// MultiHandler returns a handler that delivers each record to every non-nil
// handler in targets. A record is passed to a target only when that target
// reports the record's level as enabled.
func MultiHandler(targets ...slog.Handler) slog.Handler {
	live := make([]slog.Handler, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			live = append(live, target)
		}
	}
	if len(live) == 0 {
		return slog.NewTextHandler(io.Discard, nil)
	}
	return &fanoutHandler{targets: live}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, target := range h.targets {
		if target.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, target := range h.targets {
		if !target.Enabled(ctx, record.Level) {
			continue
		}
		if err := target.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.targets))
	for i, target := range h.targets {
		next[i] = target.WithAttrs(attrs)
	}
	return &fanoutHandler{targets: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.targets))
	for i, target := range h.targets {
		next[i] = target.WithGroup(name)
	}
	return &fanoutHandler{targets: next}
}
