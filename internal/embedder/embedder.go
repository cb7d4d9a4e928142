// Package embedder computes message embeddings through an OpenAI-compatible
// endpoint. It is a best-effort side channel: failures are logged and the
// message stays persisted without a vector, which just excludes it from
// semantic search.
package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

type Embedder struct {
	llm    *openai.LLM
	logger *zap.Logger
}

// New builds an embedder against baseURL. Returns nil (and no error) when
// baseURL is empty: embedding is optional and off by default.
func New(baseURL, token, model string, logger *zap.Logger) (*Embedder, error) {
	if baseURL == "" {
		return nil, nil
	}

	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	return &Embedder{llm: llm, logger: logger}, nil
}

// Embed returns the embedding vector for text, or nil when embedding is
// disabled or the call fails.
func (e *Embedder) Embed(ctx context.Context, text string) []float64 {
	if e == nil {
		return nil
	}

	vectors, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil || len(vectors) == 0 {
		e.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}

	out := make([]float64, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float64(v)
	}
	return out
}
