package logbuf

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Entry is a single log entry captured from slog.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries from a Buffer. Zero fields match everything.
type Filter struct {
	Since    time.Time
	MinLevel slog.Level
	Limit    int // keep only the newest Limit matches

	// AttrKey keeps entries carrying that attribute; with AttrValue set,
	// the attribute must also render as AttrValue.
	AttrKey   string
	AttrValue string
}

// Buffer is a thread-safe ring buffer of recent log entries, served by the
// admin API.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int
}

// New creates a new ring buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry, overwriting the oldest one when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Query returns entries matching f, oldest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Entry

	start := 0
	if b.count == b.size {
		start = b.pos // oldest entry when buffer is full
	}

	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.size]

		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		if ParseLevel(e.Level) < f.MinLevel {
			continue
		}
		if f.AttrKey != "" && !attrMatches(e, f.AttrKey, f.AttrValue) {
			continue
		}
		result = append(result, e)
	}

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[len(result)-f.Limit:]
	}
	return result
}

func attrMatches(e Entry, key, value string) bool {
	v, ok := e.Attrs[key]
	if !ok {
		return false
	}
	return value == "" || fmt.Sprint(v) == value
}

// ParseLevel converts a level name ("debug", "WARN", ...) to slog.Level.
// Unknown names map to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
