// Package domain contains core domain types for the debate coach bot.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// State is the phase of the per-user conversation state machine.
type State string

const (
	// StateNew is the entry state for a first-contact user.
	StateNew State = "NEW"
	// StateAwaitingEmail means the user was asked for an institutional email.
	StateAwaitingEmail State = "AWAITING_EMAIL"
	// StateAwaitingCode means a verification code was mailed and is pending.
	StateAwaitingCode State = "AWAITING_CODE"
	// StateVerified means the email was confirmed but no topic is set yet.
	StateVerified State = "VERIFIED"
	// StateAwaitingTopic means the user was asked for a debate topic.
	StateAwaitingTopic State = "AWAITING_TOPIC"
	// StateAwaitingSide means the user was asked to pick a stance.
	StateAwaitingSide State = "AWAITING_SIDE"
	// StateChatting means topic and side are set and messages go to the model.
	StateChatting State = "CHATTING"
)

// Valid reports whether s belongs to the enumerated state set.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateAwaitingEmail, StateAwaitingCode, StateVerified,
		StateAwaitingTopic, StateAwaitingSide, StateChatting:
		return true
	}
	return false
}

// Registered reports whether the user has completed email verification.
func (s State) Registered() bool {
	switch s {
	case StateVerified, StateAwaitingTopic, StateAwaitingSide, StateChatting:
		return true
	}
	return false
}

// Side is the stance the assistant is asked to support.
type Side string

const (
	SideFor     Side = "for"
	SideAgainst Side = "against"
)

// ParseSide validates a raw stance value.
func ParseSide(raw string) (Side, error) {
	switch Side(raw) {
	case SideFor:
		return SideFor, nil
	case SideAgainst:
		return SideAgainst, nil
	}
	return "", fmt.Errorf("invalid side %q", raw)
}

// Session is the durable per-user record tracking registration and debate state.
type Session struct {
	UserID           int64     `json:"user_id"`
	State            State     `json:"state"`
	Email            string    `json:"email,omitempty"`
	VerificationCode string    `json:"verification_code,omitempty"`
	Topic            string    `json:"topic,omitempty"`
	Side             Side      `json:"side,omitempty"`
	Language         string    `json:"language,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ReadyToChat reports whether chat input may be forwarded to the assistant.
func (s *Session) ReadyToChat() bool {
	return s.State == StateChatting && s.Topic != "" && s.Side != ""
}

var (
	// ErrSessionNotFound indicates the record store has no session for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists indicates a create raced with an existing record.
	ErrSessionExists = errors.New("session already exists")
	// ErrUnknownState indicates a persisted state outside the enumerated set.
	ErrUnknownState = errors.New("unknown conversation state")
)
