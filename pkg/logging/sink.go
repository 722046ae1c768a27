package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// SinkHandler renders records as single "LEVEL msg k=v" lines and hands them
// to a callback. It backs the pipeline debug sink.
type SinkHandler struct {
	fn    func(string)
	level slog.Leveler
	attrs []slog.Attr
	group string
	mu    *sync.Mutex
}

func NewSinkHandler(fn func(string), level slog.Leveler) *SinkHandler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &SinkHandler{fn: fn, level: level, mu: &sync.Mutex{}}
}

func (h *SinkHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.fn != nil && l >= h.level.Level()
}

func (h *SinkHandler) Handle(_ context.Context, r slog.Record) error {
	if h.fn == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	line := b.String()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn(line)
	return nil
}

func (h *SinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *SinkHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		next.group += "." + name
	} else {
		next.group = name
	}
	return &next
}

type teeHandler struct {
	handlers []slog.Handler
}

// Tee fans records out to every handler that accepts them.
func Tee(handlers ...slog.Handler) slog.Handler {
	list := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			list = append(list, h)
		}
	}
	return &teeHandler{handlers: list}
}

func (t *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: out}
}

// WithDebugSink returns base extended with a sink handler when fn is set.
func WithDebugSink(base *slog.Logger, fn func(string)) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if fn == nil {
		return base
	}
	return slog.New(Tee(base.Handler(), NewSinkHandler(fn, slog.LevelDebug)))
}
