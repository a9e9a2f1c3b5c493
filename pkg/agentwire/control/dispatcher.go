package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/hooking"
	"github.com/conneroisu/agentwire/pkg/agentwire/metrics"
	"github.com/conneroisu/agentwire/pkg/agentwire/permissions"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
	"github.com/conneroisu/agentwire/pkg/agentwire/tools"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

// DispatcherConfig wires the dispatcher to the session's registered
// handlers. Any field may be nil or empty; the dispatcher answers the
// corresponding requests with errors or configured defaults instead of
// dropping them.
type DispatcherConfig struct {
	Hooks             *hooking.Registry
	PermissionHandler permissions.Handler
	PermissionDefault permissions.Decision
	Tools             *tools.Registry
	MCP               ports.MCPRouter
	Logger            *slog.Logger
}

// Dispatcher services inbound control requests: hook callbacks,
// permission checks, tool calls, and MCP messages. Dispatch produces
// exactly one response line per request, never zero and never two,
// regardless of handler errors or panics.
type Dispatcher struct {
	hooks       *hooking.Registry
	permHandler permissions.Handler
	permDefault permissions.Decision
	tools       *tools.Registry
	mcp         ports.MCPRouter
	logger      *slog.Logger
}

// NewDispatcher builds a Dispatcher from cfg.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		hooks:       cfg.Hooks,
		permHandler: cfg.PermissionHandler,
		permDefault: cfg.PermissionDefault,
		tools:       cfg.Tools,
		mcp:         cfg.MCP,
		logger:      logger,
	}
}

// Dispatch services one inbound control request and returns the
// encoded response line to write back. It is safe to call from any
// goroutine; the session runs each dispatch concurrently so slow
// handlers never stall the reader loop.
func (d *Dispatcher) Dispatch(ctx context.Context, req wire.ControlRequest) (line []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("control request handler panicked",
				"request_id", req.RequestID,
				"subtype", req.Subtype,
				"panic", rec,
			)
			metrics.RecordCallback(req.Subtype, "error")
			line = errorLine(req.RequestID, fmt.Sprintf("internal error servicing %s", req.Subtype))
		}
	}()

	d.logger.Debug("servicing control request",
		"request_id", req.RequestID,
		"subtype", req.Subtype,
	)

	var (
		payload any
		err     error
	)
	switch req.Subtype {
	case wire.SubtypeHookCallback:
		payload, err = d.handleHook(ctx, req.Request)
	case wire.SubtypeCanUseTool:
		payload, err = d.handlePermission(ctx, req.Request)
	case wire.SubtypeToolCall:
		payload, err = d.handleTool(ctx, req.Request)
	case wire.SubtypeMCPMessage:
		payload, err = d.handleMCP(ctx, req.Request)
	default:
		err = agenterrs.NewCallbackError(
			agenterrs.ErrCodeUnknownCallback,
			req.Subtype,
			fmt.Sprintf("unsupported control request subtype: %s", req.Subtype),
			nil,
		)
	}

	if err != nil {
		d.logger.Warn("control request failed",
			"request_id", req.RequestID,
			"subtype", req.Subtype,
			"error", err,
		)
		metrics.RecordCallback(req.Subtype, "error")
		return errorLine(req.RequestID, err.Error())
	}

	metrics.RecordCallback(req.Subtype, "success")
	return successLine(req.RequestID, payload)
}

type hookRequest struct {
	CallbackID string         `json:"callback_id"`
	Input      map[string]any `json:"input"`
	ToolUseID  string         `json:"tool_use_id"`
}

// handleHook runs the addressed hook callback. The callback_id set at
// handshake time is the primary route; when the agent sends an unknown
// or missing ID the event name in the input drives a matcher scan
// instead.
func (d *Dispatcher) handleHook(ctx context.Context, raw json.RawMessage) (any, error) {
	var req hookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, agenterrs.NewDecodeError("malformed hook_callback request", raw, err)
	}

	if cb, ok := d.hooks.ByID(req.CallbackID); ok {
		out, err := cb(ctx, req.Input, req.ToolUseID)
		if err != nil {
			return nil, agenterrs.NewCallbackError(
				agenterrs.ErrCodeHookFailed,
				wire.SubtypeHookCallback,
				fmt.Sprintf("hook %s failed", req.CallbackID),
				err,
			)
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}

	eventName, _ := req.Input["hook_event_name"].(string)
	if eventName == "" {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeHookFailed,
			wire.SubtypeHookCallback,
			fmt.Sprintf("no hook callback found for ID %q", req.CallbackID),
			nil,
		)
	}

	return d.hooks.Run(ctx, hooking.Event(eventName), req.Input, req.ToolUseID)
}

// handlePermission answers a can_use_tool check. Permission checks
// fail closed: a handler error becomes a deny, and with no handler the
// configured default decision answers.
func (d *Dispatcher) handlePermission(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := permissions.ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	decision := d.permDefault
	if d.permHandler != nil {
		var herr error
		decision, herr = d.permHandler(ctx, req)
		if herr != nil {
			d.logger.Warn("permission handler failed, denying",
				"tool_name", req.ToolName,
				"error", herr,
			)
			decision = permissions.Deny(fmt.Sprintf("permission handler failed: %v", herr))
		}
	}
	if !decision.Valid() {
		decision = permissions.Deny("no permission decision configured")
	}

	return decision.ToWire(), nil
}

type toolRequest struct {
	ToolName string         `json:"tool_name"`
	Name     string         `json:"name"`
	Input    map[string]any `json:"input"`
}

// handleTool invokes a registry tool. Tool failures are results, not
// protocol errors: the response succeeds and carries is_error. Only an
// unknown or missing tool name produces an error response.
func (d *Dispatcher) handleTool(ctx context.Context, raw json.RawMessage) (any, error) {
	var req toolRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, agenterrs.NewDecodeError("malformed tool_call request", raw, err)
	}
	name := req.ToolName
	if name == "" {
		name = req.Name
	}
	if name == "" {
		return nil, agenterrs.NewDecodeError("tool_call request missing tool_name", raw, nil)
	}
	if d.tools == nil {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeUnknownTool,
			wire.SubtypeToolCall,
			fmt.Sprintf("unknown tool %q", name),
			nil,
		)
	}

	out, err := d.tools.Invoke(ctx, name, req.Input)
	if err != nil {
		if agenterrs.IsToolError(err) {
			d.logger.Warn("tool failed", "tool_name", name, "error", err)
			return map[string]any{"output": err.Error(), "is_error": true}, nil
		}
		// Unknown tool; the one protocol-level error case.
		return nil, err
	}

	return map[string]any{"output": out, "is_error": false}, nil
}

type mcpRequest struct {
	ServerName string          `json:"server_name"`
	Message    json.RawMessage `json:"message"`
}

// handleMCP routes an embedded MCP message to the named server. A nil
// reply (a notification) produces an empty success payload.
func (d *Dispatcher) handleMCP(ctx context.Context, raw json.RawMessage) (any, error) {
	var req mcpRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, agenterrs.NewDecodeError("malformed mcp_message request", raw, err)
	}
	if req.ServerName == "" || len(req.Message) == 0 {
		return nil, agenterrs.NewDecodeError("mcp_message request missing server_name or message", raw, nil)
	}
	if d.mcp == nil {
		return nil, agenterrs.NewCallbackError(
			agenterrs.ErrCodeUnknownServer,
			wire.SubtypeMCPMessage,
			"no MCP servers configured",
			nil,
		)
	}

	resp, err := d.mcp.Handle(ctx, req.ServerName, req.Message)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return map[string]any{}, nil
	}

	return map[string]any{"mcp_response": json.RawMessage(resp)}, nil
}

func successLine(requestID string, payload any) []byte {
	line, err := wire.EncodeSuccessResponse(requestID, payload)
	if err != nil {
		return errorLine(requestID, fmt.Sprintf("failed to encode response: %v", err))
	}
	return line
}

func errorLine(requestID, message string) []byte {
	line, err := wire.EncodeErrorResponse(requestID, message)
	if err != nil {
		// Marshal of plain strings cannot fail; guard anyway so the
		// one-response invariant holds.
		return fmt.Appendf(nil,
			`{"type":"control_response","response":{"subtype":"error","request_id":%q,"error":%q}}`,
			requestID, message,
		)
	}
	return line
}
