package logger

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler fans records out to several handlers, dropping anything below level.
type teeHandler struct {
	level    slog.Level
	handlers []slog.Handler
}

func newTeeHandler(level slog.Level, handlers []slog.Handler) *teeHandler {
	return &teeHandler{level: level, handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	if l < t.level {
		return false
	}
	for _, h := range t.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return newTeeHandler(t.level, next)
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return newTeeHandler(t.level, next)
}
