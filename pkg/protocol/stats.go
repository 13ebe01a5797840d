package protocol

import (
	"fmt"
	"time"
)

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Sessions   int           `json:"sessions"`
	Tickets    int           `json:"tickets"`
	FirstSeen  int           `json:"first_seen"`
	Notified   int           `json:"notified"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	FetchError int           `json:"fetch_errors"`
}

// Summary renders the cycle on one line.
func (c CycleStats) Summary() string {
	return fmt.Sprintf("cycle %s at %s (%s): %d sessions, %d tickets, %d new, %d notified, %d failed, %d skipped, %d fetch errors",
		c.ID, c.StartedAt.Format(time.RFC3339), c.Duration.Round(time.Millisecond),
		c.Sessions, c.Tickets, c.FirstSeen, c.Notified, c.Failed, c.Skipped, c.FetchError)
}

// Stats is the daemon's runtime overview.
type Stats struct {
	Sessions      int         `json:"sessions"`
	Conversations int         `json:"conversations"`
	Snapshots     int         `json:"snapshots"`
	Cycles        int         `json:"cycles"`
	LastCycle     *CycleStats `json:"last_cycle,omitempty"`
	NextPoll      *time.Time  `json:"next_poll,omitempty"`
	Delivered     int         `json:"delivered"`
	Undelivered   int         `json:"undelivered"`
}

// NotificationRecord is one delivery attempt from the journal.
type NotificationRecord struct {
	ID       int64     `json:"id"`
	Cycle    string    `json:"cycle"`
	TicketID int       `json:"ticket_id"`
	ChatID   int64     `json:"chat_id"`
	Kind     string    `json:"kind"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// LogEntry is a captured log record.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}
