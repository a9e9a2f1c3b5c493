package agentwire

import (
	"context"
	"encoding/json"

	"github.com/conneroisu/agentwire/pkg/agentwire/permissions"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

// Interrupt asks the agent to abandon the current turn. The active
// turn still terminates through its normal stream events.
func (s *Session) Interrupt(ctx context.Context) error {
	_, err := s.SendControl(ctx, wire.SubtypeInterrupt, nil, 0)
	return err
}

// SetModel switches the model for subsequent turns. An empty model
// restores the agent's default.
func (s *Session) SetModel(ctx context.Context, model string) error {
	_, err := s.SendControl(ctx, wire.SubtypeSetModel, map[string]any{"model": model}, 0)
	return err
}

// SetPermissionMode switches how the agent gates tool use for the rest
// of the session.
func (s *Session) SetPermissionMode(ctx context.Context, mode permissions.Mode) error {
	_, err := s.SendControl(ctx, wire.SubtypeSetPermissionMode, map[string]any{"mode": string(mode)}, 0)
	return err
}

// RewindResult is the file manifest the agent reports after a rewind.
type RewindResult struct {
	Files []string `json:"files"`
	Raw   json.RawMessage
}

// RewindFiles restores the workspace to a checkpoint and returns the
// manifest of rewound files.
func (s *Session) RewindFiles(ctx context.Context, checkpointID string) (*RewindResult, error) {
	raw, err := s.SendControl(ctx, wire.SubtypeRewindFiles, map[string]any{"checkpoint_id": checkpointID}, 0)
	if err != nil {
		return nil, err
	}

	result := &RewindResult{Raw: raw}
	if len(raw) > 0 {
		// Manifest parse failure is not an error; Raw keeps the payload.
		_ = json.Unmarshal(raw, result)
	}
	return result, nil
}

// MCPServerStatus is the agent's view of one connected MCP server.
type MCPServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MCPStatus reports the agent's view of its connected MCP servers.
func (s *Session) MCPStatus(ctx context.Context) ([]MCPServerStatus, error) {
	raw, err := s.SendControl(ctx, wire.SubtypeMCPStatus, nil, 0)
	if err != nil {
		return nil, err
	}

	var body struct {
		Servers []MCPServerStatus `json:"servers"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return body.Servers, nil
}
