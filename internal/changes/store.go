package changes

import (
	"sort"
	"sync"
)

// SnapshotStore keeps the last successfully polled snapshot per ticket id.
// Entries are never evicted: a ticket that disappears from every session's
// view keeps its last snapshot until the process restarts.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[int]Snapshot
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[int]Snapshot)}
}

// Get returns the stored snapshot of ticketID.
func (s *SnapshotStore) Get(ticketID int) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[ticketID]
	return snap, ok
}

// Put replaces the stored snapshot of snap.TicketID.
func (s *SnapshotStore) Put(snap Snapshot) {
	s.mu.Lock()
	s.snapshots[snap.TicketID] = snap
	s.mu.Unlock()
}

// Len returns the number of tracked tickets.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// List returns all snapshots ordered by ticket id.
func (s *SnapshotStore) List() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out
}
