package tools

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// autoMinPromptLen is the minimum trimmed prompt length before the auto
// heuristic will fire a web search.
const autoMinPromptLen = 8

var (
	questionWords = []string{"who", "what", "when", "where", "why", "how"}
	newsMarkers   = []string{"latest", "news", "update", "meaning", "definition"}
)

// Orchestrator decides whether a tool runs for a turn and executes it.
// Tool failures degrade to an error string as the tool output; they never
// abort the chat flow.
type Orchestrator struct {
	registry *Registry
	logger   *zap.Logger
}

func NewOrchestrator(registry *Registry, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, logger: logger}
}

// Decide picks the tool for a turn. An explicit selection wins; otherwise
// the auto heuristic may route to web search. The empty name means no tool.
func (o *Orchestrator) Decide(selected, prompt string) string {
	if selected != "" && selected != "None" {
		return selected
	}
	if wantsWebSearch(prompt) {
		if _, ok := o.registry.Get(WebSearchTool); ok {
			return WebSearchTool
		}
	}
	return ""
}

// Run executes the named tool against the raw prompt. A missing tool or a
// panicking handler produces an error string, not a failure.
func (o *Orchestrator) Run(name, prompt string) (output string) {
	tool, ok := o.registry.Get(name)
	if !ok {
		return fmt.Sprintf("Tool error: unknown tool %q", name)
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("tool handler panicked",
				zap.String("tool", name),
				zap.Any("panic", r))
			output = fmt.Sprintf("Tool error: %v", r)
		}
	}()

	return tool.Handler(prompt)
}

// wantsWebSearch is a best-effort routing aid, not a semantic classifier:
// interrogative or news-seeking prompts of a minimum length route to the
// web search tool.
func wantsWebSearch(prompt string) bool {
	p := strings.ToLower(strings.TrimSpace(prompt))
	if len(p) < autoMinPromptLen {
		return false
	}

	first, _, _ := strings.Cut(p, " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	for _, m := range newsMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}
