// Package logging wires structured logs to stdout and, optionally, to Loki.
package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// Options configure the process logger.
type Options struct {
	// Level is the minimum level emitted. Zero value is Info.
	Level slog.Level

	// LokiURL enables shipping to Loki when non-empty (base URL, no path).
	LokiURL string

	// Project is attached as a stream label to every shipped record.
	Project string
}

// New builds the process logger: a JSON handler on stdout, fanned out to a
// Loki push handler when a Loki URL is configured. Loki delivery failures
// degrade to stderr and never reach the caller.
func New(opts Options) *slog.Logger {
	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: opts.Level})

	if opts.LokiURL == "" {
		return slog.New(stdout)
	}

	loki := NewLokiHandler(opts.LokiURL, opts.Project, opts.Level)
	return slog.New(fanout(stdout, loki))
}

// fanoutHandler duplicates records to several handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func fanout(handlers ...slog.Handler) slog.Handler {
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
