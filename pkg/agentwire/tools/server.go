package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes the registry as an in-process MCP server. The agent
// reaches it through mcp_message control requests; no subprocess or
// socket is involved.
func Server(name, version string, reg *Registry) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
	)

	for _, toolName := range reg.Names() {
		t, ok := reg.Get(toolName)
		if !ok {
			continue
		}
		s.AddTool(
			mcp.NewToolWithRawSchema(t.Name, t.Description, rawSchema(t)),
			invokeHandler(reg, t.Name),
		)
	}

	return s
}

// invokeHandler adapts a registry tool to the MCP handler signature.
// Tool failures become error results, not transport errors.
func invokeHandler(reg *Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := reg.Invoke(ctx, name, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(renderResult(out)), nil
	}
}

// renderResult turns a handler's return value into result text.
func renderResult(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
