package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in the exchange fed to the assistant backend.
// The system turn carrying the current topic/side is built fresh at send
// time and never stored as history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
