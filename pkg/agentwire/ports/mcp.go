// Package ports defines interfaces for external integrations and services.
package ports

import (
	"context"
	"encoding/json"
)

// MCPRouter routes raw JSON-RPC messages from the remote agent to MCP
// servers hosted on this side of the transport, addressed by server name.
// Implementations may answer in process or proxy to an external server.
type MCPRouter interface {
	// Handle processes one raw JSON-RPC message for the named server and
	// returns the raw JSON-RPC response. A nil response with nil error
	// means the message was a notification and needs no reply.
	Handle(ctx context.Context, serverName string, message json.RawMessage) (json.RawMessage, error)

	// Servers returns the names of all routable servers.
	Servers() []string

	// Close releases every server connection. It must be idempotent.
	Close() error
}
