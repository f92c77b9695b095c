package session

import "time"

// MessageRole distinguishes prompt and reply entries in the history.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry of a session's exchange history. Token and cost
// figures are recorded only for assistant replies, after the host confirms
// the exchange; failed exchanges never appear here.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Tokens    int64       `json:"tokens"`
	Cost      int64       `json:"cost"`
	CreatedAt time.Time   `json:"created_at"`
}
