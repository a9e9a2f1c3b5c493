// Package mcpbridge routes MCP traffic embedded in the control protocol to
// servers hosted on this side of the transport. In-process servers answer
// with a direct method call; external servers are proxied through the
// official MCP SDK client over stdio or streamable HTTP.
package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/options"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
)

// route answers raw JSON-RPC messages for one named server.
type route interface {
	handle(ctx context.Context, message json.RawMessage) (json.RawMessage, error)
	close() error
}

// Bridge implements ports.MCPRouter over a fixed set of named servers
// built from session options.
type Bridge struct {
	logger *slog.Logger
	names  []string

	mu     sync.Mutex
	routes map[string]route
	closed bool
}

var _ ports.MCPRouter = (*Bridge)(nil)

// Connect builds a bridge for every configured server, dialing the external
// ones concurrently. When any server fails, the ones already connected are
// closed before the error returns.
func Connect(ctx context.Context, logger *slog.Logger, configs []options.MCPServerConfig) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		logger: logger,
		routes: make(map[string]route, len(configs)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range configs {
		b.names = append(b.names, cfg.Name())
		g.Go(func() error {
			r, err := connectOne(gctx, cfg)
			if err != nil {
				return fmt.Errorf("connect MCP server %q: %w", cfg.Name(), err)
			}
			mu.Lock()
			b.routes[cfg.Name()] = r
			mu.Unlock()
			logger.Debug("MCP server ready", "server", cfg.Name())

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = b.Close()

		return nil, err
	}

	return b, nil
}

func connectOne(ctx context.Context, cfg options.MCPServerConfig) (route, error) {
	switch c := cfg.(type) {
	case *options.InProcessMCPServer:
		return &localRoute{server: c.Server}, nil
	case *options.StdioMCPServer:
		return dialExternal(ctx, c.ServerName, commandTransport(c))
	case *options.HTTPMCPServer:
		return dialExternal(ctx, c.ServerName, httpTransport(c))
	default:
		return nil, agenterrs.NewConfigError(fmt.Sprintf("unknown MCP server config type %T", cfg))
	}
}

// Handle routes one raw JSON-RPC message to the named server. A nil
// response with nil error means the message was a notification.
func (b *Bridge) Handle(ctx context.Context, serverName string, message json.RawMessage) (json.RawMessage, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil, agenterrs.NewSessionClosed()
	}
	r, ok := b.routes[serverName]
	b.mu.Unlock()

	if !ok {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeUnknownServer,
			"mcp_message",
			fmt.Sprintf("unknown MCP server %q", serverName),
			nil,
		)
	}

	return r.handle(ctx, message)
}

// Servers returns the configured server names in configuration order.
func (b *Bridge) Servers() []string {
	return slices.Clone(b.names)
}

// Close shuts down every route. Calling it again is a no-op.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil
	}
	b.closed = true
	routes := b.routes
	b.routes = nil
	b.mu.Unlock()

	var errs []error
	for name, r := range routes {
		if err := r.close(); err != nil {
			errs = append(errs, fmt.Errorf("close MCP server %q: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// localRoute serves an in-process server instance. The server speaks raw
// JSON-RPC directly, including its own initialize handshake.
type localRoute struct {
	server *mcpserver.MCPServer
}

func (r *localRoute) handle(ctx context.Context, message json.RawMessage) (json.RawMessage, error) {
	resp := r.server.HandleMessage(ctx, message)
	if resp == nil {
		// Notification; nothing to send back.
		return nil, nil
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeCallbackFailed,
			"mcp_message",
			"encode MCP response",
			err,
		)
	}

	return out, nil
}

func (r *localRoute) close() error { return nil }
