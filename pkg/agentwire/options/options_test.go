package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/permissions"
	"github.com/conneroisu/agentwire/pkg/agentwire/tools"
)

func TestWithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()

	assert.NotNil(t, o.Logger)
	assert.Equal(t, DefaultControlTimeout, o.ControlTimeout)
	assert.Equal(t, DefaultHandshakeTimeout, o.HandshakeTimeout)
	assert.Equal(t, permissions.ModeDefault, o.PermissionMode)

	// The zero-value default decision becomes an explicit deny, never
	// an allow.
	require.True(t, o.DefaultPermissionDecision.Valid())
	assert.Equal(t, permissions.BehaviorDeny, o.DefaultPermissionDecision.Behavior)
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	o := Options{
		ControlTimeout:            5 * time.Second,
		PermissionMode:            permissions.ModePlan,
		DefaultPermissionDecision: permissions.Allow(),
	}.WithDefaults()

	assert.Equal(t, 5*time.Second, o.ControlTimeout)
	assert.Equal(t, permissions.ModePlan, o.PermissionMode)
	assert.Equal(t, permissions.BehaviorAllow, o.DefaultPermissionDecision.Behavior)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		opts    Options
		wantErr bool
	}{
		"zero options": {
			opts: Options{},
		},
		"named servers": {
			opts: Options{MCPServers: []MCPServerConfig{
				&StdioMCPServer{ServerName: "files", Command: "mcp-files"},
				&HTTPMCPServer{ServerName: "search", URL: "https://mcp.example.com"},
			}},
		},
		"invalid default decision": {
			opts:    Options{DefaultPermissionDecision: permissions.Decision{Behavior: "maybe"}},
			wantErr: true,
		},
		"negative control timeout": {
			opts:    Options{ControlTimeout: -time.Second},
			wantErr: true,
		},
		"local server without tools": {
			opts:    Options{LocalServerName: "local"},
			wantErr: true,
		},
		"duplicate server names": {
			opts: Options{MCPServers: []MCPServerConfig{
				&StdioMCPServer{ServerName: "files", Command: "a"},
				&HTTPMCPServer{ServerName: "files", URL: "https://x"},
			}},
			wantErr: true,
		},
		"nil server config": {
			opts:    Options{MCPServers: []MCPServerConfig{nil}},
			wantErr: true,
		},
		"stdio without command": {
			opts:    Options{MCPServers: []MCPServerConfig{&StdioMCPServer{ServerName: "files"}}},
			wantErr: true,
		},
		"http without url": {
			opts:    Options{MCPServers: []MCPServerConfig{&HTTPMCPServer{ServerName: "search"}}},
			wantErr: true,
		},
		"in-process without instance": {
			opts:    Options{MCPServers: []MCPServerConfig{&InProcessMCPServer{ServerName: "local"}}},
			wantErr: true,
		},
		"unnamed server": {
			opts:    Options{MCPServers: []MCPServerConfig{&StdioMCPServer{Command: "a"}}},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, agenterrs.IsConfigError(err), "want config error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLocalServerNameCollision(t *testing.T) {
	reg := tools.NewRegistry()

	o := Options{
		Tools:           reg,
		LocalServerName: "local",
		MCPServers: []MCPServerConfig{
			&StdioMCPServer{ServerName: "local", Command: "mcp-files"},
		},
	}

	err := o.Validate()
	require.Error(t, err)
	assert.True(t, agenterrs.IsConfigError(err))
}
