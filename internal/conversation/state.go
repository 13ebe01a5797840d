package conversation

import "sync"

// Step is the position of a chat user inside a multi-step dialog.
type Step int

const (
	StepIdle Step = iota
	StepAwaitingLogin
	StepAwaitingPassword
	StepAwaitingTitle
	StepAwaitingDescription
	StepAwaitingUrgency
	StepAwaitingType
)

func (s Step) String() string {
	switch s {
	case StepAwaitingLogin:
		return "awaiting_login"
	case StepAwaitingPassword:
		return "awaiting_password"
	case StepAwaitingTitle:
		return "awaiting_title"
	case StepAwaitingDescription:
		return "awaiting_description"
	case StepAwaitingUrgency:
		return "awaiting_urgency"
	case StepAwaitingType:
		return "awaiting_type"
	default:
		return "idle"
	}
}

// Form accumulates the fields collected by the active flow.
type Form struct {
	Login       string
	Title       string
	Description string
	Urgency     int
	Type        int
}

// State is the dialog position and partial form of one chat user.
type State struct {
	Step Step
	Form Form
}

// StateStore keeps dialog state per chat id. Safe for concurrent use.
type StateStore struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[int64]State)}
}

// Get returns the state of chatID; unknown users are idle.
func (s *StateStore) Get(chatID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[chatID]
}

// Set replaces the state of chatID. An idle state is removed.
func (s *StateStore) Set(chatID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Step == StepIdle {
		delete(s.states, chatID)
		return
	}
	s.states[chatID] = st
}

// Clear drops the state of chatID, returning it to idle.
func (s *StateStore) Clear(chatID int64) {
	s.mu.Lock()
	delete(s.states, chatID)
	s.mu.Unlock()
}

// Len returns the number of users inside a dialog.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
