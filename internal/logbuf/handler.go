package logbuf

import (
	"context"
	"log/slog"
)

// Handler is an slog.Handler that captures entries into a Buffer
// and delegates to an inner handler.
type Handler struct {
	inner   slog.Handler
	buf     *Buffer
	capture slog.Level
	attrs   []slog.Attr
	groups  []string
}

// NewHandler creates a handler that writes to both buf and inner. The buffer
// keeps records at or above capture regardless of the inner handler's level.
func NewHandler(inner slog.Handler, buf *Buffer, capture slog.Level) *Handler {
	return &Handler{inner: inner, buf: buf, capture: capture}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.capture || h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.capture {
		h.buf.Write(h.entry(r))
	}
	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) entry(r slog.Record) Entry {
	attrs := make(map[string]any)
	add := func(a slog.Attr) {
		key := a.Key
		for i := len(h.groups) - 1; i >= 0; i-- {
			key = h.groups[i] + "." + key
		}
		attrs[key] = resolveAttrValue(a.Value)
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	e := Entry{Time: r.Time, Level: r.Level.String(), Message: r.Message}
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	return e
}

// resolveAttrValue converts slog values to JSON-safe types. Errors become
// their message, durations their string form.
func resolveAttrValue(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindDuration {
		return v.Duration().String()
	}
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner:   h.inner.WithAttrs(attrs),
		buf:     h.buf,
		capture: h.capture,
		attrs:   append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		groups:  h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:   h.inner.WithGroup(name),
		buf:     h.buf,
		capture: h.capture,
		attrs:   h.attrs,
		groups:  append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
