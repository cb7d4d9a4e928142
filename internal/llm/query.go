package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// rawBodyLimit bounds the last-resort raw dump of an unparseable response.
const rawBodyLimit = 500

// QueryModel routes a turn to the right backend by model class and blocks
// for the full response. The result is always displayable text.
func (c *Client) QueryModel(ctx context.Context, modelClass string, req Request) string {
	switch modelClass {
	case ModelClassBooks:
		if c.books == nil {
			return "Error: no books backend configured."
		}
		return c.books.QueryBooks(req.Prompt)
	case ModelClassGeneral, "":
		return c.Query(ctx, req)
	default:
		return fmt.Sprintf("Unknown model class %q.", modelClass)
	}
}

// Query performs a single blocking chat-completions request. Response
// parsing degrades gracefully because OpenAI-compatible local servers vary
// in response shape.
func (c *Client) Query(ctx context.Context, req Request) string {
	url := NormalizeURL(req.Endpoint)

	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: buildMessages(req),
		Stream:   false,
	})
	if err != nil {
		return fmt.Sprintf("Error: building request for %s: %v", url, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("Error: building request for %s: %v", url, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("query request failed", zap.String("url", url), zap.Error(err))
		return fmt.Sprintf("Error: request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error: reading response from %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("query request rejected",
			zap.String("url", url), zap.Int("status", resp.StatusCode))
		return fmt.Sprintf("Error: HTTP %d from %s", resp.StatusCode, url)
	}

	return ExtractContent(raw)
}

// extractors are tried in order until one yields non-empty content; the
// explicit list keeps the degradation chain testable.
var extractors = []func([]byte) (string, bool){
	extractMessageContent,
	extractChoiceText,
	extractContentParts,
}

// ExtractContent pulls response text out of a completion body, trying each
// known shape in turn and falling back to a truncated raw dump.
func ExtractContent(raw []byte) string {
	for _, extract := range extractors {
		if text, ok := extract(raw); ok {
			return text
		}
	}

	dump := strings.TrimSpace(string(raw))
	if len(dump) > rawBodyLimit {
		dump = dump[:rawBodyLimit] + "…"
	}
	return dump
}

// extractMessageContent handles the standard shape:
// {"choices":[{"message":{"content":"..."}}]}
func extractMessageContent(raw []byte) (string, bool) {
	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Choices) == 0 {
		return "", false
	}
	if text := body.Choices[0].Message.Content; text != "" {
		return text, true
	}
	return "", false
}

// extractChoiceText handles legacy completion shapes:
// {"choices":[{"text":"..."}]}
func extractChoiceText(raw []byte) (string, bool) {
	var body struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Choices) == 0 {
		return "", false
	}
	if text := body.Choices[0].Text; text != "" {
		return text, true
	}
	return "", false
}

// extractContentParts handles structured content lists:
// {"choices":[{"message":{"content":[{"type":"text","text":"..."}]}}]}
func extractContentParts(raw []byte) (string, bool) {
	var body struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Choices) == 0 {
		return "", false
	}

	var sb strings.Builder
	for _, part := range body.Choices[0].Message.Content {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}
