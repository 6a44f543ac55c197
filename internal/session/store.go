// Package session keeps the in-memory table of live interview sessions.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrSessionInUse is returned by Attach while another connection holds the
// session.
var ErrSessionInUse = errors.New("session already attached")

// Store maps session ids to their State. All operations take one mutex that
// guards only the map; callers must never hold it across remote calls, which
// the API makes impossible since the lock is never exposed.
type Store struct {
	start  string
	log    *slog.Logger
	clock  func() time.Time
	mu     sync.Mutex
	states map[string]*State
}

// NewStore creates a store whose new sessions begin at startNodeID.
func NewStore(startNodeID string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{
		start:  startNodeID,
		log:    log.With(slog.String("component", "session-store")),
		clock:  time.Now,
		states: make(map[string]*State),
	}
}

// GetOrCreate returns the session for id, creating it at the start node on
// first contact. Concurrent callers with the same new id observe one State.
func (s *Store) GetOrCreate(id string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[id]; ok {
		s.log.Debug("session resumed", slog.String("session_id", id))
		return st
	}
	st := newState(id, s.start, s.clock().UTC())
	s.states[id] = st
	s.log.Info("session created", slog.String("session_id", id), slog.String("node_id", s.start))
	return st
}

// Attach claims the session for id on behalf of one connection, creating it
// at the start node when absent. resumed reports whether the State existed
// before the call. Each State is held by at most one connection; the claim
// ends with Release.
func (s *Store) Attach(id string) (st *State, resumed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, resumed = s.states[id]
	if !resumed {
		st = newState(id, s.start, s.clock().UTC())
		s.states[id] = st
		s.log.Info("session created", slog.String("session_id", id), slog.String("node_id", s.start))
	}
	if st.attached {
		s.log.Warn("session already attached", slog.String("session_id", id))
		return nil, true, ErrSessionInUse
	}
	st.attached = true
	return st, resumed, nil
}

// Release drops the claim taken by Attach and deletes the session, but only
// while st is still the State registered under id. A State that has been
// replaced is left alone so one connection cannot remove another's session.
func (s *Store) Release(id string, st *State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st != nil {
		st.attached = false
	}
	cur, ok := s.states[id]
	if !ok || cur != st {
		s.log.Debug("release of stale session", slog.String("session_id", id))
		return false
	}
	delete(s.states, id)
	s.log.Info("session removed", slog.String("session_id", id))
	return true
}

// Get returns the session for id without creating it.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return st, ok
}

// Remove deletes the session regardless of who holds it. Removing an absent id is a no-op; the return
// value reports whether anything was deleted.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[id]; !ok {
		s.log.Debug("remove of unknown session", slog.String("session_id", id))
		return false
	}
	delete(s.states, id)
	s.log.Info("session removed", slog.String("session_id", id))
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// RegisterMetrics exposes the live session count as an observable gauge.
func (s *Store) RegisterMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-interview/session")
	gauge, err := meter.Int64ObservableGauge("interview.sessions.active", metric.WithDescription("Number of live interview sessions"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(s.Len()))
		return nil
	}, gauge)
	return err
}
