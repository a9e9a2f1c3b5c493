// Package tools implements the local tool registry: callable functions
// the agent may invoke through tool_call control requests, plus an
// adapter that exposes the same registry as an in-process MCP server.
package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes one tool call. The args map is the parsed input
// object from the agent. The returned value is serialized into the
// response: strings pass through, everything else is JSON-encoded.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one callable function exposed to the agent.
type Tool struct {
	Name        string
	Description string

	// InputSchema describes the args object. Nil means any object.
	InputSchema *jsonschema.Schema

	Handler Handler
}
