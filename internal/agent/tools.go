// Package agent implements the event-gated task reactor that wraps an LLM
// inference service: a debounced, single-flight inference loop driven by
// inbound game events, with sync-tool context skipping and async-tool
// completion correlation.
package agent

import (
	"context"
	"fmt"
)

// ToolHandler executes one tool call and returns the text fed back to the
// model as the tool result.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// Tool defines one LLM-invocable tool.
type Tool struct {
	// Name is the canonical tool name the model calls.
	Name string
	// Description is the tool's model-facing description.
	Description string
	// Handler executes the tool.
	Handler ToolHandler
	// SkipEventName, when non-empty, names the event this tool's own
	// result already carries (a SYNC_TOOL_EVENTS entry) — one skip
	// credit is armed per call, consumed by the next matching event so
	// it is not also appended to the LLM context.
	SkipEventName string
	// AsyncCompletionEventName, when non-empty, marks this as an async
	// completion tool (an ASYNC_TOOL_COMPLETIONS entry): the reactor
	// returns a placeholder result immediately and defers the next
	// inference until this event arrives or the completion timeout
	// fires.
	AsyncCompletionEventName string
}

// Registry maps tool names to Tool definitions.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates a Registry populated with the given tools.
//
// Precondition: No two tools may share a name.
// Postcondition: Returns a Registry or an error on a name collision.
func NewRegistry(tools []Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for i := range tools {
		t := &tools[i]
		if _, exists := r.tools[t.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %q", t.Name)
		}
		r.tools[t.Name] = t
	}
	return r, nil
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in no particular order.
func (r *Registry) All() []*Tool {
	result := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	return result
}
