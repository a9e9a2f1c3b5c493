package options

import (
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

// MCPServerConfig is the sealed interface over MCP server
// configurations. External servers run as subprocesses or behind HTTP
// endpoints; in-process servers are direct method calls.
type MCPServerConfig interface {
	mcpServerConfig()

	// Name returns the server identifier used to route mcp_message
	// callbacks.
	Name() string

	validate() error
}

// StdioMCPServer runs an external MCP server as a subprocess speaking
// the stdio transport.
type StdioMCPServer struct {
	ServerName string
	Command    string
	Args       []string
	Env        map[string]string
}

func (*StdioMCPServer) mcpServerConfig() {}

// Name returns the server identifier.
func (c *StdioMCPServer) Name() string { return c.ServerName }

func (c *StdioMCPServer) validate() error {
	if c.ServerName == "" {
		return agenterrs.NewConfigError("stdio MCP server needs a name")
	}
	if c.Command == "" {
		return agenterrs.NewConfigError("stdio MCP server " + c.ServerName + " needs a command")
	}
	return nil
}

// HTTPMCPServer reaches an external MCP server over streamable HTTP.
// Servers that only speak SSE are reachable through the same endpoint
// shape.
type HTTPMCPServer struct {
	ServerName string
	URL        string
	Headers    map[string]string
}

func (*HTTPMCPServer) mcpServerConfig() {}

// Name returns the server identifier.
func (c *HTTPMCPServer) Name() string { return c.ServerName }

func (c *HTTPMCPServer) validate() error {
	if c.ServerName == "" {
		return agenterrs.NewConfigError("HTTP MCP server needs a name")
	}
	if c.URL == "" {
		return agenterrs.NewConfigError("HTTP MCP server " + c.ServerName + " needs a URL")
	}
	return nil
}

// InProcessMCPServer serves an MCP server instance from inside this
// process, with no subprocess or socket.
type InProcessMCPServer struct {
	ServerName string
	Server     *mcpserver.MCPServer
}

func (*InProcessMCPServer) mcpServerConfig() {}

// Name returns the server identifier.
func (c *InProcessMCPServer) Name() string { return c.ServerName }

func (c *InProcessMCPServer) validate() error {
	if c.ServerName == "" {
		return agenterrs.NewConfigError("in-process MCP server needs a name")
	}
	if c.Server == nil {
		return agenterrs.NewConfigError("in-process MCP server " + c.ServerName + " has no instance")
	}
	return nil
}
