package types

import "context"

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

// Message represents one chat turn flowing between a channel and the agent.
type Message struct {
	ID        string
	Content   string
	Role      string // "user", "assistant", "system"
	ChannelID string // Source channel identifier (e.g., "web", "cli", "telegram")
	UserID    string
	RequestID string
	Meta      map[string]interface{}
}

// Agent processes one turn and always produces a user-facing reply.
type Agent interface {
	Process(ctx context.Context, msg Message) (Message, error)
	Name() string
}

// Channel represents an input/output surface (web chat, CLI, Telegram).
type Channel interface {
	Start(ctx context.Context, handler func(Message)) error
	Send(ctx context.Context, msg Message) error
	ID() string
}

// Gateway orchestrates channels and the agent.
type Gateway interface {
	RegisterChannel(c Channel)
	Start(ctx context.Context) error
}
