package agentwire

import (
	"context"
	"encoding/json"

	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

// RemoteCommand is one runtime-control command the agent advertises
// during the initialize handshake.
type RemoteCommand struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RemoteInfo is the agent's half of the initialize handshake: the
// capabilities and runtime commands it supports. Raw preserves the
// whole response payload for fields this engine does not model.
type RemoteInfo struct {
	Commands    []RemoteCommand
	OutputStyle string
	Raw         json.RawMessage
}

// initialize performs the handshake: it advertises the registered hook
// callbacks and the requested model and permission mode, and retains
// what the agent reports back. Handshake failure is a connect failure.
func (s *Session) initialize(ctx context.Context) (*RemoteInfo, error) {
	payload := map[string]any{}
	if !s.opts.Hooks.Empty() {
		payload["hooks"] = s.opts.Hooks.InitConfig()
	}
	if s.opts.Model != "" {
		payload["model"] = s.opts.Model
	}
	if s.opts.PermissionMode != "" {
		payload["permission_mode"] = string(s.opts.PermissionMode)
	}

	raw, err := s.SendControl(ctx, wire.SubtypeInitialize, payload, s.opts.HandshakeTimeout)
	if err != nil {
		return nil, err
	}

	return parseRemoteInfo(raw), nil
}

// parseRemoteInfo decodes the initialize response. The command list
// arrives as objects or bare name strings depending on agent version;
// both are accepted. An unparsable response degrades to Raw only.
func parseRemoteInfo(raw json.RawMessage) *RemoteInfo {
	info := &RemoteInfo{Raw: raw}
	if len(raw) == 0 {
		return info
	}

	var body struct {
		Commands    []json.RawMessage `json:"commands"`
		OutputStyle string            `json:"output_style"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return info
	}
	info.OutputStyle = body.OutputStyle

	for _, c := range body.Commands {
		var cmd RemoteCommand
		if err := json.Unmarshal(c, &cmd); err == nil && cmd.Name != "" {
			info.Commands = append(info.Commands, cmd)
			continue
		}
		var name string
		if err := json.Unmarshal(c, &name); err == nil && name != "" {
			info.Commands = append(info.Commands, RemoteCommand{Name: name})
		}
	}

	return info
}

// RemoteInfo returns what the agent reported during the handshake.
func (s *Session) RemoteInfo() *RemoteInfo {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.remote
}
