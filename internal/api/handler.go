// Package api exposes the engine over HTTP: conversation CRUD, message
// turns with optional streaming and tool augmentation, and keyword plus
// semantic search over chat history.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/toolhub/toolhub/internal/db"
	"github.com/toolhub/toolhub/internal/embedder"
	"github.com/toolhub/toolhub/internal/llm"
	"github.com/toolhub/toolhub/internal/search"
	"github.com/toolhub/toolhub/internal/tools"
	"go.uber.org/zap"
)

const (
	defaultConversationLimit = 50
	defaultTopK              = 5

	// titleLimit caps titles auto-generated from the first user message.
	titleLimit = 60
)

type Handler struct {
	db           *db.Database
	llm          *llm.Client
	searcher     *search.Engine
	orchestrator *tools.Orchestrator
	registry     *tools.Registry
	embedder     *embedder.Embedder
	tokenBudget  int
	logger       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*llm.Token
}

func NewHandler(database *db.Database, client *llm.Client, searcher *search.Engine,
	orchestrator *tools.Orchestrator, registry *tools.Registry,
	emb *embedder.Embedder, tokenBudget int, logger *zap.Logger) *Handler {
	return &Handler{
		db:           database,
		llm:          client,
		searcher:     searcher,
		orchestrator: orchestrator,
		registry:     registry,
		embedder:     emb,
		tokenBudget:  tokenBudget,
		logger:       logger,
		sessions:     make(map[string]*llm.Token),
	}
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// GetConversations lists conversations on GET and creates one on POST.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := defaultConversationLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		conversations, err := h.db.ListConversations(limit)
		if err != nil {
			h.logger.Error("Failed to list conversations", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, conversations)

	case http.MethodPost:
		var req CreateConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Title == "" {
			req.Title = "New Chat"
		}

		conversation, err := h.db.CreateConversation(req.Title)
		if err != nil {
			h.logger.Error("Failed to create conversation", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, conversation)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.db.UpdateConversationTitle(convID, req.Title); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update conversation", zap.Int64("id", convID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	if err := h.db.DeleteConversation(convID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to delete conversation", zap.Int64("id", convID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	messages, err := h.db.GetMessages(convID)
	if err != nil {
		h.logger.Error("Failed to get messages", zap.Int64("conversation", convID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, messages)
}

// GetTools lists the registered tools for the UI's tool picker.
func (h *Handler) GetTools(w http.ResponseWriter, r *http.Request) {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	infos := make([]toolInfo, 0)
	for _, name := range h.registry.Names() {
		tool, _ := h.registry.Get(name)
		infos = append(infos, toolInfo{Name: name, Description: tool.Description})
	}
	h.writeJSON(w, infos)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= titleLimit {
		return s
	}
	return string(runes[:titleLimit])
}
