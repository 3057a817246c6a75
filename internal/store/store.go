// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ehu-labs/debate-coach/internal/domain"
)

// Patch carries a partial session update. Nil fields are left untouched;
// non-nil fields are applied together in a single logical write.
type Patch struct {
	State            *domain.State
	Email            *string
	VerificationCode *string
	Topic            *string
	Side             *domain.Side
	Language         *string
}

// StatePatch is shorthand for a patch that only moves the state.
func StatePatch(s domain.State) Patch {
	return Patch{State: &s}
}

// Repository defines the interface for persisting per-user sessions.
type Repository interface {
	// Exists reports whether a session record exists for the user id.
	Exists(ctx context.Context, userID int64) (bool, error)

	// Create inserts a new session record.
	// Returns domain.ErrSessionExists if one is already present.
	Create(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by user id.
	// Returns (nil, nil) when no record exists.
	Get(ctx context.Context, userID int64) (*domain.Session, error)

	// Update applies a partial update to an existing record. The patch is
	// applied atomically; it never partially lands.
	// Returns domain.ErrSessionNotFound if no record exists.
	Update(ctx context.Context, userID int64, patch Patch) error

	// Delete removes the session record. Deleting an absent record is not
	// an error.
	Delete(ctx context.Context, userID int64) error

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
