package session

import (
	"sync"
	"time"
)

// Signal is the coarse triage classification of an answer.
type Signal string

const (
	SignalCorrect   Signal = "correct"
	SignalPartial   Signal = "partial"
	SignalIncorrect Signal = "incorrect"
	SignalError     Signal = "error"
)

// ParseSignal maps a model supplied label onto a known signal. Anything
// unrecognised becomes SignalError.
func ParseSignal(s string) Signal {
	switch Signal(s) {
	case SignalCorrect, SignalPartial, SignalIncorrect:
		return Signal(s)
	default:
		return SignalError
	}
}

// TriageResult is the outcome of a fast evaluation. Confidence is in [0,1]
// and is always 0 for SignalError.
type TriageResult struct {
	Signal     Signal  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

// ErrorResult is the fail-closed triage outcome.
func ErrorResult() TriageResult {
	return TriageResult{Signal: SignalError, Confidence: 0}
}

// Turn is one answered question.
type Turn struct {
	NodeID   string       `json:"node_id"`
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Triage   TriageResult `json:"triage"`
	At       time.Time    `json:"at"`
}

// State is the mutable per-candidate interview state. The Store owns it; a
// connection borrows it for its lifetime. The mutex lets background readers
// take history snapshots while the connection appends.
type State struct {
	id        string
	createdAt time.Time

	// attached is guarded by the owning Store's mutex.
	attached bool

	mu      sync.RWMutex
	current string
	history []Turn
}

func newState(id, start string, now time.Time) *State {
	return &State{id: id, current: start, createdAt: now}
}

func (s *State) ID() string { return s.id }

func (s *State) CreatedAt() time.Time { return s.createdAt }

func (s *State) CurrentNodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *State) SetCurrentNodeID(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

// AppendTurn adds t to the end of the history.
func (s *State) AppendTurn(t Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

// History returns a snapshot copy of the turns recorded so far.
func (s *State) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.history...)
}

// Turns returns the number of recorded turns.
func (s *State) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
