package core

// Conversation roles. The set is open; these are the ones the runtime
// interprets.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleEmpty     = "empty" // Sentinel root of a conversation that has not started
)

// Message is one linearized turn handed to a provider.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// CloneMessages deep copies a message slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: m.Role, Content: m.Content.Clone()}
	}
	return out
}
