package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

// Registry stores tools by name, preserving registration order for
// listings. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique and non-empty, and the
// tool must carry a handler.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return agenterrs.NewConfigError("tool name must not be empty")
	}
	if t.Handler == nil {
		return agenterrs.NewConfigError(fmt.Sprintf("tool %q has no handler", t.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return agenterrs.NewConfigError(fmt.Sprintf("tool %q already registered", t.Name))
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)

	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invoke runs the named tool. An unknown name yields an error with
// code ErrCodeUnknownTool; a handler error or panic yields a ToolError
// wrapping the cause. Callers distinguish the two: unknown tools are
// protocol errors, failed tools are reported as results with an error
// flag.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result any, err error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeUnknownTool,
			"tool_call",
			fmt.Sprintf("unknown tool %q", name),
			nil,
		)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = agenterrs.NewToolError(name, fmt.Errorf("panic: %v", rec))
		}
	}()

	out, err := t.Handler(ctx, args)
	if err != nil {
		return nil, agenterrs.NewToolError(name, err)
	}

	return out, nil
}
