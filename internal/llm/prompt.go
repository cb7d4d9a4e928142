package llm

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/toolhub/toolhub/internal/models"
)

const historyEncoding = "cl100k_base"

// WindowHistory trims a conversation's history to a token budget, keeping
// the most recent messages and preserving their order. A budget of zero or
// less returns the history untouched.
func WindowHistory(history []models.Message, budget int) []models.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	enc, err := tiktoken.GetEncoding(historyEncoding)

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		used += countTokens(enc, err, history[i].Content)
		if used > budget {
			break
		}
		start = i
	}

	// Always keep at least the latest message, even over budget.
	if start == len(history) {
		start = len(history) - 1
	}
	return history[start:]
}

// countTokens falls back to a bytes/4 estimate when the encoding is
// unavailable (tiktoken fetches its vocabulary lazily).
func countTokens(enc *tiktoken.Tiktoken, encErr error, text string) int {
	if encErr != nil || enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
