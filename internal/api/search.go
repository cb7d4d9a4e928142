package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/toolhub/toolhub/internal/db"
	"github.com/toolhub/toolhub/internal/vector"
	"go.uber.org/zap"
)

// SearchMessages serves the keyword half of hybrid search:
// GET /api/search?q=keyword.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	results, err := h.db.SearchMessages(query)
	if err != nil {
		h.logger.Error("Failed to search messages", zap.String("query", query), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, results)
}

type SemanticSearchRequest struct {
	// Vector is a caller-supplied query embedding. When absent, Query is
	// embedded server-side (requires the embedder to be configured).
	Vector []float64 `json:"vector"`
	Query  string    `json:"query"`
	TopK   int       `json:"top_k"`
}

// SemanticSearch serves the vector half of hybrid search.
func (h *Handler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SemanticSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	queryVector := req.Vector
	if len(queryVector) == 0 {
		if h.embedder == nil || req.Query == "" {
			http.Error(w, "A query vector is required", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if queryVector = h.embedder.Embed(ctx, req.Query); queryVector == nil {
			http.Error(w, "Failed to embed query", http.StatusBadGateway)
			return
		}
	}

	results, err := h.searcher.Semantic(queryVector, req.TopK)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) {
			http.Error(w, "Query vector dimension mismatch", http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to run semantic search", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, results)
}

type UpsertEmbeddingRequest struct {
	MessageID int64     `json:"message_id"`
	Vector    []float64 `json:"vector"`
}

// UpsertEmbedding attaches a client-computed embedding to a message.
func (h *Handler) UpsertEmbedding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpsertEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Vector) == 0 {
		http.Error(w, "Empty vector", http.StatusBadRequest)
		return
	}

	if err := h.db.UpsertMessageEmbedding(req.MessageID, req.Vector); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to store embedding", zap.Int64("message", req.MessageID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
