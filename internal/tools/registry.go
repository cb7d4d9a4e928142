// Package tools provides the tool registry and the orchestration logic that
// decides whether a turn gets tool augmentation before the model is called.
package tools

import (
	"sort"
	"sync"
)

// Handler is an opaque tool capability: raw prompt in, output text out.
// Handlers are trusted to do their own I/O and timeouts.
type Handler func(prompt string) string

type Tool struct {
	Description string
	Handler     Handler
}

// Registry maps tool names to capabilities. New tools are added by
// registration, not by changing orchestrator logic.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(name string, tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted for stable display.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
