// Package options defines session configuration: permission defaults,
// control timeouts, hook and tool registries, MCP server configs, and
// logger injection.
package options

import (
	"log/slog"
	"time"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/hooking"
	"github.com/conneroisu/agentwire/pkg/agentwire/permissions"
	"github.com/conneroisu/agentwire/pkg/agentwire/tools"
)

const (
	// DefaultControlTimeout bounds runtime-control commands that carry
	// no explicit deadline of their own.
	DefaultControlTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds the initialize exchange at connect.
	DefaultHandshakeTimeout = 60 * time.Second
)

// WireRecorder receives every line crossing the transport. The record
// package provides the NDJSON implementation.
type WireRecorder interface {
	RecordIn(line []byte)
	RecordOut(line []byte)
}

// Options configures a session.
type Options struct {
	// Logging. Nil means slog.Default().
	Logger *slog.Logger

	// Control protocol deadlines.
	ControlTimeout   time.Duration
	HandshakeTimeout time.Duration

	// Model requested during the initialize handshake. Empty keeps the
	// agent's default.
	Model string

	// Permission handling. When PermissionHandler is nil every
	// can_use_tool check is answered with DefaultPermissionDecision,
	// whose zero value denies. There is no built-in silent allow.
	PermissionMode            permissions.Mode
	PermissionHandler         permissions.Handler
	DefaultPermissionDecision permissions.Decision

	// Hook callbacks advertised during the handshake.
	Hooks *hooking.Registry

	// Local tools the agent may call directly via tool_call requests.
	// The same registry is also exposed as the in-process MCP server
	// named LocalServerName when that field is set.
	Tools           *tools.Registry
	LocalServerName string

	// MCP servers reachable through mcp_message callbacks, keyed by
	// the Name each config reports.
	MCPServers []MCPServerConfig

	// Recorder, when set, captures every inbound and outbound line.
	Recorder WireRecorder

	// EnableMetrics turns on Prometheus instrumentation.
	EnableMetrics bool
}

// WithDefaults returns a copy of o with zero values replaced by
// defaults.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ControlTimeout <= 0 {
		o.ControlTimeout = DefaultControlTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.PermissionMode == "" {
		o.PermissionMode = permissions.ModeDefault
	}
	if !o.DefaultPermissionDecision.Valid() {
		o.DefaultPermissionDecision = permissions.Deny("no permission handler registered")
	}
	return o
}

// Validate reports configuration errors. Call it before WithDefaults;
// it treats zero values as "unset", not as errors.
func (o Options) Validate() error {
	if o.DefaultPermissionDecision.Behavior != "" && !o.DefaultPermissionDecision.Valid() {
		return agenterrs.NewConfigError("default permission decision must allow or deny")
	}
	if o.ControlTimeout < 0 {
		return agenterrs.NewConfigError("control timeout must not be negative")
	}
	if o.LocalServerName != "" && o.Tools == nil {
		return agenterrs.NewConfigError("local server name set without a tool registry")
	}

	seen := make(map[string]bool, len(o.MCPServers))
	for _, cfg := range o.MCPServers {
		if cfg == nil {
			return agenterrs.NewConfigError("nil MCP server config")
		}
		if err := cfg.validate(); err != nil {
			return err
		}
		name := cfg.Name()
		if seen[name] {
			return agenterrs.NewConfigError("duplicate MCP server name " + name)
		}
		if name == o.LocalServerName && o.LocalServerName != "" {
			return agenterrs.NewConfigError("MCP server name collides with local server " + name)
		}
		seen[name] = true
	}

	return nil
}
