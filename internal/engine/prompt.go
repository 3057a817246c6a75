package engine

import (
	"fmt"

	"github.com/ehu-labs/debate-coach/internal/domain"
)

// DebatePrompt builds the system role for the assistant backend. It is
// rebuilt from the current topic and side on every request and never
// stored as part of the conversation history.
func DebatePrompt(topic string, side domain.Side) string {
	return fmt.Sprintf(
		"You are helping a student prepare for a debate. The topic is '%s', and the student is arguing '%s' it. "+
			"Provide helpful advice, ideas, and counterarguments to support their position.",
		topic, side,
	)
}
