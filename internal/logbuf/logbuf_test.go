package logbuf

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestBufferRingOverwrite(t *testing.T) {
	buf := New(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		buf.Write(Entry{
			Time:    now.Add(time.Duration(i) * time.Second),
			Level:   "INFO",
			Message: "msg",
			Attrs:   map[string]any{"i": i},
		})
	}

	entries := buf.Query(Filter{})
	if len(entries) != 3 || buf.Len() != 3 {
		t.Fatalf("expected 3 entries (ring buffer size), got %d", len(entries))
	}
	// Should be entries 2, 3, 4 (oldest first)
	if entries[0].Attrs["i"] != 2 || entries[2].Attrs["i"] != 4 {
		t.Fatalf("unexpected order: %v", entries)
	}
}

func TestBufferQueryFilters(t *testing.T) {
	buf := New(10)
	now := time.Now()

	buf.Write(Entry{Time: now, Level: "DEBUG", Message: "debug"})
	buf.Write(Entry{Time: now.Add(time.Second), Level: "INFO", Message: "sent", Attrs: map[string]any{"ticket": 12}})
	buf.Write(Entry{Time: now.Add(2 * time.Second), Level: "WARN", Message: "failed", Attrs: map[string]any{"ticket": 13}})
	buf.Write(Entry{Time: now.Add(3 * time.Second), Level: "ERROR", Message: "error", Attrs: map[string]any{"ticket": 12}})

	if got := buf.Query(Filter{MinLevel: slog.LevelWarn}); len(got) != 2 || got[0].Message != "failed" {
		t.Errorf("level filter: %v", got)
	}
	if got := buf.Query(Filter{Since: now.Add(2 * time.Second), MinLevel: slog.LevelDebug}); len(got) != 2 {
		t.Errorf("since filter: %v", got)
	}
	if got := buf.Query(Filter{MinLevel: slog.LevelDebug, Limit: 3}); len(got) != 3 || got[0].Message != "sent" {
		t.Errorf("limit should keep the newest: %v", got)
	}
	got := buf.Query(Filter{MinLevel: slog.LevelDebug, AttrKey: "ticket", AttrValue: "12"})
	if len(got) != 2 || got[0].Message != "sent" || got[1].Message != "error" {
		t.Errorf("attr filter: %v", got)
	}
	if got := buf.Query(Filter{MinLevel: slog.LevelDebug, AttrKey: "ticket"}); len(got) != 3 {
		t.Errorf("attr presence filter: %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandlerCaptures(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(&discardWriter{}, nil)
	logger := slog.New(NewHandler(inner, buf, slog.LevelDebug))

	logger.Info("hello", "key", "value", "error", errors.New("boom"), "took", 1500*time.Millisecond)
	logger.Warn("warning")

	entries := buf.Query(Filter{MinLevel: slog.LevelDebug})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	attrs := entries[0].Attrs
	if attrs["key"] != "value" || attrs["error"] != "boom" || attrs["took"] != "1.5s" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
	if entries[1].Level != "WARN" {
		t.Fatalf("expected WARN level, got %q", entries[1].Level)
	}
}

func TestHandlerWithAttrsAndGroups(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(&discardWriter{}, nil)
	logger := slog.New(NewHandler(inner, buf, slog.LevelDebug)).With("component", "poller").WithGroup("glpi")

	logger.Info("msg", "status", 200)

	entries := buf.Query(Filter{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Attrs["component"] != "poller" || entries[0].Attrs["glpi.status"] != 200 {
		t.Fatalf("unexpected attrs: %v", entries[0].Attrs)
	}
}

func TestHandlerCaptureLevel(t *testing.T) {
	buf := New(10)
	// Inner handler only allows WARN+, buffer keeps INFO+.
	inner := slog.NewTextHandler(&discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewHandler(inner, buf, slog.LevelInfo)
	logger := slog.New(handler)

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("DEBUG should be disabled on both sides")
	}
	if !handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("INFO should be enabled for the buffer")
	}

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")

	if n := buf.Len(); n != 2 {
		t.Fatalf("expected 2 entries in buffer, got %d", n)
	}
}

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }
