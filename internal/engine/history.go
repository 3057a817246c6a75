package engine

import (
	"sync"

	"github.com/ehu-labs/debate-coach/internal/domain"
)

// Sessions owns the transient per-user conversation state: the turn
// history fed to the assistant and the state snapshot used by cancel.
// Entries are created on first use and destroyed on account deletion.
// Events for a single user arrive sequentially, so the lock only guards
// access across different users.
type Sessions struct {
	mu       sync.Mutex
	history  map[int64][]domain.Turn
	previous map[int64]domain.State
}

// NewSessions creates an empty session manager.
func NewSessions() *Sessions {
	return &Sessions{
		history:  make(map[int64][]domain.Turn),
		previous: make(map[int64]domain.State),
	}
}

// AppendTurn adds a turn to the user's conversation history.
func (s *Sessions) AppendTurn(userID int64, turn domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[userID] = append(s.history[userID], turn)
}

// Turns returns a copy of the user's conversation history.
func (s *Sessions) Turns(userID int64) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.history[userID]
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

// ClearHistory discards the user's conversation history. Called whenever
// topic or side changes so the assistant never sees turns from a
// different pairing.
func (s *Sessions) ClearHistory(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, userID)
}

// SetPrevious records the state that existed before a topic/side sub-flow
// began.
func (s *Sessions) SetPrevious(userID int64, state domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous[userID] = state
}

// Previous returns the recorded pre-sub-flow state, if any.
func (s *Sessions) Previous(userID int64) (domain.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.previous[userID]
	return state, ok
}

// ClearPrevious drops the recorded pre-sub-flow state.
func (s *Sessions) ClearPrevious(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.previous, userID)
}

// Drop removes all transient state for the user. Called on account
// deletion so no history outlives its session record.
func (s *Sessions) Drop(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, userID)
	delete(s.previous, userID)
}
