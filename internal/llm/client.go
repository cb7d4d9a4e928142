// Package llm drives requests against an OpenAI-compatible chat-completions
// endpoint, streaming or blocking, and routes the books model class to the
// external books-query collaborator. Network failures never surface as
// errors: callers always get a displayable string.
package llm

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/toolhub/toolhub/internal/models"
	"go.uber.org/zap"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Model classes the router understands. General goes over the chat wire;
// books is answered by the books-query collaborator.
const (
	ModelClassGeneral = "general"
	ModelClassBooks   = "books"
)

// BooksQuerier is the black-box document-RAG collaborator. It returns a
// descriptive error string rather than failing the caller.
type BooksQuerier interface {
	QueryBooks(prompt string) string
}

// Request is one turn's worth of input to the model endpoint. Endpoint and
// Model are resolved by the caller per request, not cached here.
type Request struct {
	Endpoint   string
	Model      string
	Prompt     string
	ToolResult string
	History    []models.Message
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type Client struct {
	httpClient *http.Client
	books      BooksQuerier
	logger     *zap.Logger
}

func New(logger *zap.Logger, books BooksQuerier) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		books:      books,
		logger:     logger,
	}
}

// buildMessages assembles the wire messages for a turn: system prompt,
// replayed history, the user prompt, and optionally the tool result as
// extra system context. Stored tool-role messages replay as system context
// too, since OpenAI-style tool messages need call ids we do not track.
func buildMessages(req Request) []wireMessage {
	msgs := []wireMessage{{Role: "system", Content: defaultSystemPrompt}}

	for _, m := range req.History {
		role := m.Role
		content := m.Content
		if role == models.RoleTool {
			role = "system"
			content = "Tool result: " + content
		}
		msgs = append(msgs, wireMessage{Role: role, Content: content})
	}

	msgs = append(msgs, wireMessage{Role: "user", Content: req.Prompt})
	if req.ToolResult != "" {
		msgs = append(msgs, wireMessage{Role: "system", Content: "Tool result: " + req.ToolResult})
	}
	return msgs
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// NormalizeURL resolves a caller-supplied base URL to the full
// chat-completions path. Idempotent: a fully qualified URL passes through
// unchanged.
//
//	.../v1/chat -> .../v1/chat/completions
//	.../v1      -> .../v1/chat/completions
func NormalizeURL(base string) string {
	s := strings.TrimRight(base, "/")
	if strings.HasSuffix(s, "/chat") {
		return s + "/completions"
	}
	if seg := s[strings.LastIndex(s, "/")+1:]; versionSegment.MatchString(seg) {
		return s + "/chat/completions"
	}
	return s
}
