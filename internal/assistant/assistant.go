// Package assistant provides the language-model backend for debate chat.
package assistant

import (
	"context"

	"github.com/ehu-labs/debate-coach/internal/domain"
)

// Backend generates a reply for the given system prompt and ordered
// conversation turns. Implementations may stream internally, but callers
// only ever see the fully assembled text. An empty reply is reported as
// an error so the engine can surface it without corrupting history.
type Backend interface {
	Reply(ctx context.Context, systemPrompt string, turns []domain.Turn) (string, error)
}
