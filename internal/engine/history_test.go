package engine

import (
	"testing"

	"github.com/ehu-labs/debate-coach/internal/domain"
)

func TestSessionsHistory(t *testing.T) {
	s := NewSessions()

	s.AppendTurn(1, domain.Turn{Role: domain.RoleUser, Content: "a"})
	s.AppendTurn(1, domain.Turn{Role: domain.RoleAssistant, Content: "b"})
	s.AppendTurn(2, domain.Turn{Role: domain.RoleUser, Content: "other user"})

	turns := s.Turns(1)
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Content != "a" || turns[1].Content != "b" {
		t.Errorf("turns = %+v", turns)
	}

	// Returned slice is a copy.
	turns[0].Content = "mutated"
	if got := s.Turns(1)[0].Content; got != "a" {
		t.Errorf("history mutated through returned slice: %q", got)
	}

	s.ClearHistory(1)
	if got := len(s.Turns(1)); got != 0 {
		t.Errorf("len after clear = %d, want 0", got)
	}
	if got := len(s.Turns(2)); got != 1 {
		t.Errorf("other user's history lost: len = %d, want 1", got)
	}
}

func TestSessionsPrevious(t *testing.T) {
	s := NewSessions()

	if _, ok := s.Previous(1); ok {
		t.Error("previous set before any snapshot")
	}

	s.SetPrevious(1, domain.StateChatting)
	state, ok := s.Previous(1)
	if !ok || state != domain.StateChatting {
		t.Errorf("Previous = %s, %v", state, ok)
	}

	s.ClearPrevious(1)
	if _, ok := s.Previous(1); ok {
		t.Error("previous survived clear")
	}
}

func TestSessionsDrop(t *testing.T) {
	s := NewSessions()
	s.AppendTurn(1, domain.Turn{Role: domain.RoleUser, Content: "a"})
	s.SetPrevious(1, domain.StateVerified)

	s.Drop(1)
	if got := len(s.Turns(1)); got != 0 {
		t.Errorf("history survived drop: %d turns", got)
	}
	if _, ok := s.Previous(1); ok {
		t.Error("previous survived drop")
	}
}
