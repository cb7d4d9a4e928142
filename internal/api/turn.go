package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/toolhub/toolhub/internal/config"
	"github.com/toolhub/toolhub/internal/db"
	"github.com/toolhub/toolhub/internal/llm"
	"github.com/toolhub/toolhub/internal/models"
	"go.uber.org/zap"
)

type MessageRequest struct {
	Content    string `json:"content"`
	Tool       string `json:"tool"`        // explicit tool name, "" or "None" for auto
	ModelClass string `json:"model_class"` // "general" (default) or "books"
	Stream     bool   `json:"stream"`
}

type MessageResponse struct {
	Message    *models.Message `json:"message"`
	ToolOutput string          `json:"tool_output,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	State      string          `json:"state,omitempty"`
}

// HandleMessage runs one conversation turn: persist the user message,
// optionally run a tool and persist its output, call the model (streaming
// or blocking), persist the assistant reply, and kick off best-effort
// embedding of the new messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := parseConversationID(r)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Empty message", http.StatusBadRequest)
		return
	}

	history, err := h.db.GetMessages(convID)
	if err != nil {
		h.logger.Error("Failed to load history", zap.Int64("conversation", convID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	userMsgID, err := h.db.AddMessage(convID, models.RoleUser, req.Content)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to save user message", zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to save message: %v", err), http.StatusInternalServerError)
		return
	}
	h.embedAsync(userMsgID, req.Content)

	// First user message titles the conversation.
	if len(history) == 0 {
		if err := h.db.UpdateConversationTitle(convID, truncateTitle(req.Content)); err != nil {
			h.logger.Warn("Failed to auto-title conversation", zap.Int64("conversation", convID), zap.Error(err))
		}
	}

	// Tool augmentation. A tool failure degrades to error text as the
	// tool output and the turn carries on.
	var toolName, toolOutput string
	if name := h.orchestrator.Decide(req.Tool, req.Content); name != "" {
		toolName = name
		toolOutput = h.orchestrator.Run(name, req.Content)
		if toolMsgID, err := h.db.AddMessage(convID, models.RoleTool, toolOutput); err != nil {
			h.logger.Warn("Failed to save tool output", zap.String("tool", name), zap.Error(err))
		} else {
			h.embedAsync(toolMsgID, toolOutput)
		}
	}

	llmReq := llm.Request{
		Endpoint:   config.Endpoint(),
		Model:      config.Model(),
		Prompt:     req.Content,
		ToolResult: toolOutput,
		History:    llm.WindowHistory(history, h.tokenBudget),
	}

	if req.Stream && req.ModelClass != llm.ModelClassBooks {
		h.streamTurn(w, r, convID, llmReq, toolName, toolOutput)
		return
	}

	answer := h.llm.QueryModel(r.Context(), req.ModelClass, llmReq)
	h.finishTurn(convID, answer)

	h.writeJSON(w, MessageResponse{
		Message:    &models.Message{ConvID: convID, Role: models.RoleAssistant, Content: answer},
		ToolOutput: toolOutput,
		ToolName:   toolName,
		State:      llm.StateCompleted.String(),
	})
}

// streamTurn relays model output to the client as SSE while accumulating
// the final text for persistence. The first event carries the session id
// so the client can cancel mid-stream via CancelSession.
func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, convID int64,
	llmReq llm.Request, toolName, toolOutput string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	token := llm.NewToken()
	sessionID := uuid.NewString()
	h.registerSession(sessionID, token)
	defer h.unregisterSession(sessionID)

	// Client disconnect cancels the stream too.
	go func() {
		<-r.Context().Done()
		token.Cancel()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(event string, v any) {
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
		flusher.Flush()
	}

	writeEvent("session", map[string]string{"session": sessionID})
	if toolName != "" {
		writeEvent("tool", map[string]string{"tool": toolName, "output": toolOutput})
	}

	result := h.llm.Stream(r.Context(), llmReq, token, func(chunk string) {
		writeEvent("chunk", map[string]string{"content": chunk})
	})

	// A cancelled stream's partial text is a valid response; only a
	// failure with no text is not worth persisting.
	if result.State != llm.StateFailed || result.Text != "" {
		h.finishTurn(convID, result.Text)
	}

	writeEvent("done", map[string]string{"state": result.State.String(), "content": result.Text})
}

// finishTurn persists the assistant reply and embeds it best-effort.
func (h *Handler) finishTurn(convID int64, answer string) {
	msgID, err := h.db.AddMessage(convID, models.RoleAssistant, answer)
	if err != nil {
		h.logger.Error("Failed to save assistant message",
			zap.Int64("conversation", convID), zap.Error(err))
		return
	}
	h.embedAsync(msgID, answer)
}

// CancelSession flips the cancellation token of an in-flight streaming
// session. Unknown session ids 404: the stream may already have finished.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session")
	h.mu.Lock()
	token, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	token.Cancel()
	h.logger.Info("Session cancelled", zap.String("session", sessionID))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) registerSession(id string, token *llm.Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[id] = token
}

func (h *Handler) unregisterSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// embedAsync attaches an embedding to a stored message off the request
// path. Embedding is a side channel: failure never blocks persistence.
func (h *Handler) embedAsync(messageID int64, content string) {
	if h.embedder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		vector := h.embedder.Embed(ctx, content)
		if vector == nil {
			return
		}
		if err := h.db.UpsertMessageEmbedding(messageID, vector); err != nil {
			h.logger.Warn("Failed to store embedding",
				zap.Int64("message", messageID), zap.Error(err))
		}
	}()
}

func parseConversationID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
}
