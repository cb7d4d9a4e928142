package models

import "time"

// Message roles. Tool output is stored under RoleTool so UIs and search
// can tell tool provenance apart from assistant text.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        int64     `json:"id"`
	ConvID    int64     `json:"conversation_id"`
	Role      string    `json:"role"` // user, assistant, or tool
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// KeywordResult is one hit from the case-insensitive substring search
// across all conversations. Snippet is a bounded excerpt centred on the
// first match.
type KeywordResult struct {
	ConvID  int64  `json:"conversation_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// EmbeddedMessage is a message that has an embedding attached, as returned
// to the semantic search engine.
type EmbeddedMessage struct {
	MessageID int64     `json:"message_id"`
	ConvID    int64     `json:"conversation_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Vector    []float64 `json:"vector"`
}

// SemanticResult pairs an embedded message with its cosine score.
type SemanticResult struct {
	Score   float64         `json:"score"`
	Message EmbeddedMessage `json:"message"`
}
