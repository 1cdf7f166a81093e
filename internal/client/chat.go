package client

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one message of a chat conversation.
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatRequest describes one chat completion call.
type ChatRequest struct {
	// System is the system prompt.
	System string

	Messages []ChatMessage

	MaxTokens   int
	Temperature float64
}
