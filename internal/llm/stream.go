package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State tracks a streaming session's lifecycle:
// Idle -> Sending -> Streaming -> {Completed | Cancelled | Failed}.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Token is a cooperative cancellation switch. Cancellation is advisory:
// it is observed at each chunk boundary, not by interrupting a read.
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token { return &Token{} }

func (t *Token) Cancel() { t.cancelled.Store(true) }

func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// StreamResult is the outcome of one streaming session. Text is valid in
// every terminal state: a cancelled stream yields the partial accumulation,
// a failed one a displayable error string.
type StreamResult struct {
	Text  string
	State State
}

const streamTerminator = "[DONE]"

// streamChunk covers both delta-style events and servers that resend the
// full accumulated message on each event.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Stream sends the request with stream=true and accumulates incremental
// content until the terminator event, cancellation, or error. onChunk, if
// non-nil, receives each newly arrived piece of text.
func (c *Client) Stream(ctx context.Context, req Request, tok *Token, onChunk func(string)) StreamResult {
	if tok == nil {
		tok = NewToken()
	}

	sessionID := uuid.NewString()
	url := NormalizeURL(req.Endpoint)
	logger := c.logger.With(
		zap.String("session", sessionID),
		zap.String("url", url),
		zap.String("model", req.Model))

	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: buildMessages(req),
		Stream:   true,
	})
	if err != nil {
		return StreamResult{Text: fmt.Sprintf("Error: building request for %s: %v", url, err), State: StateFailed}
	}

	logger.Debug("stream session sending", zap.String("state", StateSending.String()))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return StreamResult{Text: fmt.Sprintf("Error: building request for %s: %v", url, err), State: StateFailed}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn("stream request failed", zap.Error(err))
		return StreamResult{Text: fmt.Sprintf("Error: request to %s failed: %v", url, err), State: StateFailed}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("stream request rejected", zap.Int("status", resp.StatusCode))
		return StreamResult{Text: fmt.Sprintf("Error: HTTP %d from %s", resp.StatusCode, url), State: StateFailed}
	}

	logger.Debug("stream session streaming", zap.String("state", StateStreaming.String()))

	var acc strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if tok.Cancelled() {
			logger.Info("stream cancelled", zap.Int("accumulated", acc.Len()))
			return StreamResult{Text: acc.String(), State: StateCancelled}
		}

		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == streamTerminator {
			logger.Debug("stream completed", zap.Int("accumulated", acc.Len()))
			return StreamResult{Text: acc.String(), State: StateCompleted}
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil || len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		switch {
		case choice.Delta.Content != "":
			acc.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(choice.Delta.Content)
			}
		case choice.Message.Content != "":
			// Some local servers resend the full accumulated text
			// instead of deltas. Replace, never append twice.
			full := choice.Message.Content
			if onChunk != nil {
				if fresh, ok := strings.CutPrefix(full, acc.String()); ok {
					onChunk(fresh)
				} else {
					onChunk(full)
				}
			}
			acc.Reset()
			acc.WriteString(full)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("stream read failed", zap.Error(err))
		if acc.Len() == 0 {
			return StreamResult{Text: fmt.Sprintf("Error: reading stream from %s: %v", url, err), State: StateFailed}
		}
	}

	// Stream ended without an explicit terminator; treat what we have as
	// the final response.
	return StreamResult{Text: acc.String(), State: StateCompleted}
}
