package protocol

import "time"

// SessionInfo describes a logged-in chat user. Backend tokens are never
// exposed.
type SessionInfo struct {
	ChatID    int64     `json:"chat_id"`
	Role      string    `json:"role"`
	Profile   string    `json:"profile,omitempty"`
	UserID    int       `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotInfo is the last observed state of a ticket.
type SnapshotInfo struct {
	TicketID int    `json:"ticket_id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Urgency  string `json:"urgency"`
	Type     string `json:"type"`
	Deadline string `json:"deadline,omitempty"`
	Comments int    `json:"comments"`
}
