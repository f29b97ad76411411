package rag

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation as seen by the retrieval core.
type Turn struct {
	Role    string
	Content string
}
