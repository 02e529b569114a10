package domain

// Roles recorded on persisted messages. The stored value is "ai" rather than
// "assistant" to stay compatible with existing ChatMessages table data.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Message is a single persisted conversation turn. Messages are immutable
// once written and ordered within a chat by epoch-second timestamp. JSON tags
// mirror the DynamoDB attribute names so /chat/messages returns items in the
// same shape they are stored.
type Message struct {
	ChatID       string `json:"ChatID"`
	Timestamp    int64  `json:"timestamp"`
	Text         string `json:"message"`
	Role         string `json:"type"`
	AudioFileURL string `json:"AudioFileURL,omitempty"`
}

// ChatMessage is the provider-agnostic prompt message shape used by the
// conversation engine and LLM integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
