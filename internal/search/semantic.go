// Package search ranks stored messages against a query embedding. The scan
// is exhaustive by design: correctness over an unindexed local corpus beats
// asymptotic scalability here.
package search

import (
	"fmt"
	"sort"

	"github.com/toolhub/toolhub/internal/models"
	"github.com/toolhub/toolhub/internal/vector"
)

// Store is the slice of the db layer the engine reads from.
type Store interface {
	MessagesWithEmbeddings() ([]models.EmbeddedMessage, error)
}

type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// Semantic returns the topK embedded messages ranked by cosine similarity
// to the query vector, highest first. A query whose dimensionality differs
// from the stored vectors fails closed with vector.ErrDimensionMismatch.
func (e *Engine) Semantic(query []float64, topK int) ([]models.SemanticResult, error) {
	embedded, err := e.store.MessagesWithEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("loading embedded messages: %w", err)
	}

	results := make([]models.SemanticResult, 0, len(embedded))
	for _, em := range embedded {
		score, err := vector.Cosine(query, em.Vector)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", em.MessageID, err)
		}
		results = append(results, models.SemanticResult{Score: score, Message: em})
	}

	// Stable keeps retrieval order for tied scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
