package session

import (
	"sort"
	"sync"
	"time"
)

// Role is the backend privilege level of a session.
type Role int

const (
	RoleRegular Role = iota
	RoleTechnician
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleTechnician:
		return "technician"
	case RoleAdmin:
		return "admin"
	default:
		return "regular"
	}
}

// Elevated reports whether the role may see every ticket.
func (r Role) Elevated() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// RoleFromProfile maps a GLPI profile name to a Role.
func RoleFromProfile(profile string) Role {
	switch profile {
	case "Technician":
		return RoleTechnician
	case "Admin", "Super-Admin":
		return RoleAdmin
	default:
		return RoleRegular
	}
}

// Session binds a chat user to an authenticated backend identity.
type Session struct {
	ChatID    int64
	Token     string
	Role      Role
	Profile   string // profile name as reported by the backend
	UserID    int    // backend user id, 0 if unknown
	CreatedAt time.Time
}

// Store holds one session per chat user. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]Session)}
}

// Put stores s, replacing any previous session of the same chat user.
func (st *Store) Put(s Session) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	st.mu.Lock()
	st.sessions[s.ChatID] = s
	st.mu.Unlock()
}

// Get returns the session of chatID, if any.
func (st *Store) Get(chatID int64) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[chatID]
	return s, ok
}

// Delete removes the session of chatID and returns it.
func (st *Store) Delete(chatID int64) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[chatID]
	if ok {
		delete(st.sessions, chatID)
	}
	return s, ok
}

// List returns a copy of all sessions ordered by chat id, so callers can
// iterate without holding the lock.
func (st *Store) List() []Session {
	st.mu.RLock()
	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// Len returns the number of sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
