package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Kind is the shape of a delivered notification.
type Kind string

const (
	KindComments Kind = "comments"
	KindChanges  Kind = "changes"
	KindCombined Kind = "combined"
)

// Status is the outcome of one delivery attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Entry records one notification delivery attempt.
type Entry struct {
	ID       int64
	Cycle    string // poll cycle id
	TicketID int
	ChatID   int64
	Kind     Kind
	Status   Status
	Error    string
	SentAt   time.Time
}

// Filter constrains List queries.
type Filter struct {
	TicketID int    // 0 = any
	ChatID   int64  // 0 = any
	Status   Status // "" = any
	Limit    int    // 0 = no limit
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is an append-only audit log of notification deliveries in SQLite.
// It never feeds back into change detection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle     TEXT NOT NULL DEFAULT '',
			ticket_id INTEGER NOT NULL,
			chat_id   INTEGER NOT NULL,
			kind      TEXT NOT NULL,
			status    TEXT NOT NULL,
			error     TEXT NOT NULL DEFAULT '',
			sent_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_ticket ON deliveries(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_sent_at ON deliveries(sent_at);
	`)
	if err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record appends e. A zero SentAt is set to now.
func (s *Store) Record(e Entry) error {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO deliveries (cycle, ticket_id, chat_id, kind, status, error, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Cycle, e.TicketID, e.ChatID, string(e.Kind), string(e.Status), e.Error, e.SentAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (s *Store) List(filter Filter) ([]Entry, error) {
	query := "SELECT id, cycle, ticket_id, chat_id, kind, status, error, sent_at FROM deliveries WHERE 1=1"
	var args []any

	if filter.TicketID != 0 {
		query += " AND ticket_id = ?"
		args = append(args, filter.TicketID)
	}
	if filter.ChatID != 0 {
		query += " AND chat_id = ?"
		args = append(args, filter.ChatID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind, status, sentAt string
		if err := rows.Scan(&e.ID, &e.Cycle, &e.TicketID, &e.ChatID, &kind, &status, &e.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("journal: list scan: %w", err)
		}
		e.Kind = Kind(kind)
		e.Status = Status(status)
		e.SentAt, _ = time.ParseInLocation(timeLayout, sentAt, time.UTC)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of entries with the given status ("" = all).
func (s *Store) Count(status Status) (int, error) {
	query := "SELECT COUNT(*) FROM deliveries"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Prune deletes entries sent before cutoff and returns how many were removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM deliveries WHERE sent_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return errors.New("journal: not open")
	}
	return s.db.Close()
}
