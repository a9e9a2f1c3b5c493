package permissions

import (
	"encoding/json"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

type wireRequest struct {
	ToolName    string          `json:"tool_name"`
	Input       map[string]any  `json:"input"`
	Suggestions json.RawMessage `json:"permission_suggestions"`
	ToolUseID   string          `json:"tool_use_id"`
}

// ParseRequest decodes the body of a can_use_tool control request.
// Suggestions that fail to parse are dropped rather than failing the
// whole check; their shape is advisory.
func ParseRequest(raw json.RawMessage) (Request, error) {
	var wr wireRequest
	if err := json.Unmarshal(raw, &wr); err != nil {
		return Request{}, agenterrs.NewDecodeError("malformed permission request", raw, err)
	}
	if wr.ToolName == "" {
		return Request{}, agenterrs.NewDecodeError("permission request missing tool_name", raw, nil)
	}

	req := Request{
		ToolName:  wr.ToolName,
		Input:     wr.Input,
		ToolUseID: wr.ToolUseID,
	}
	if len(wr.Suggestions) > 0 {
		var updates []Update
		if err := json.Unmarshal(wr.Suggestions, &updates); err == nil {
			req.Suggestions = updates
		}
	}

	return req, nil
}
