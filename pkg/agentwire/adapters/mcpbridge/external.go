package mcpbridge

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/options"
)

// clientInfo identifies this engine to external MCP servers.
var clientInfo = &mcp.Implementation{Name: "agentwire", Version: "0.1.0"}

// JSON-RPC error codes the proxy emits.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// toolSession is the slice of the MCP client session the proxy uses.
// *mcp.ClientSession satisfies it.
type toolSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// dialExternal connects an MCP client over transport and wraps the session
// as a route.
func dialExternal(ctx context.Context, name string, transport mcp.Transport) (route, error) {
	client := mcp.NewClient(clientInfo, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}

	return &externalRoute{name: name, session: session}, nil
}

func commandTransport(cfg *options.StdioMCPServer) mcp.Transport {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
			env = append(env, k+"="+cfg.Env[k])
		}
		cmd.Env = env
	}

	return &mcp.CommandTransport{Command: cmd}
}

func httpTransport(cfg *options.HTTPMCPServer) mcp.Transport {
	client := http.DefaultClient
	if len(cfg.Headers) > 0 {
		client = &http.Client{Transport: &headerRoundTripper{
			base:    http.DefaultTransport,
			headers: cfg.Headers,
		}}
	}

	return &mcp.StreamableClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: client,
	}
}

// headerRoundTripper stamps fixed headers onto every outgoing request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}

	return t.base.RoundTrip(clone)
}

// externalRoute proxies raw JSON-RPC messages onto a typed client session.
// The session completed the MCP handshake at connect time, so an inbound
// initialize is answered locally instead of re-sent.
type externalRoute struct {
	name    string
	session toolSession
}

// jsonrpcEnvelope is the part of a JSON-RPC message the proxy inspects.
type jsonrpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Protocol-level failures become JSON-RPC error responses so the agent sees
// them in its mcp_response; only response encoding can fail as a Go error.
func (r *externalRoute) handle(ctx context.Context, message json.RawMessage) (json.RawMessage, error) {
	var env jsonrpcEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return jsonrpcError(nil, codeParseError, "parse error"), nil
	}

	// Notifications carry no id and get no reply. The typed session has no
	// way to forward them, so they stop here.
	if len(env.ID) == 0 || string(env.ID) == "null" {
		return nil, nil
	}

	switch env.Method {
	case "initialize":
		return jsonrpcResult(env.ID, initializeResult(r.name))
	case "ping":
		return jsonrpcResult(env.ID, map[string]any{})
	case "tools/list":
		res, err := r.session.ListTools(ctx, &mcp.ListToolsParams{})
		if err != nil {
			return jsonrpcError(env.ID, codeInternalError, err.Error()), nil
		}

		return jsonrpcResult(env.ID, res)
	case "tools/call":
		var params mcp.CallToolParams
		if len(env.Params) > 0 {
			if err := json.Unmarshal(env.Params, &params); err != nil {
				return jsonrpcError(env.ID, codeInvalidParams, "invalid params: "+err.Error()), nil
			}
		}
		res, err := r.session.CallTool(ctx, &params)
		if err != nil {
			return jsonrpcError(env.ID, codeInternalError, err.Error()), nil
		}

		return jsonrpcResult(env.ID, res)
	default:
		return jsonrpcError(env.ID, codeMethodNotFound, "method not found: "+env.Method), nil
	}
}

func (r *externalRoute) close() error {
	return r.session.Close()
}

// initializeResult stands in for the remote server's handshake answer. The
// proxy only forwards tool traffic, so tools is the one capability claimed.
func initializeResult(name string) map[string]any {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{"tools": map[string]any{"listChanged": true}},
		"serverInfo":      map[string]any{"name": name, "version": clientInfo.Version},
	}
}

func jsonrpcResult(id json.RawMessage, result any) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
	if err != nil {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeCallbackFailed,
			"mcp_message",
			"encode MCP response",
			err,
		)
	}

	return payload, nil
}

func jsonrpcError(id json.RawMessage, code int, message string) json.RawMessage {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	payload, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})

	return payload
}
