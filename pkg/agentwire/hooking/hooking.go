// Package hooking registers lifecycle hook callbacks and runs them
// when the agent sends hook_callback control requests.
//
// Hooks are declared before the session connects. Each callback gets a
// stable ID that the session advertises during the initialize
// handshake; the agent later addresses callbacks by that ID.
package hooking

import "context"

// Event names a hook trigger point.
type Event string

const (
	// PreToolUse fires before a tool executes.
	PreToolUse Event = "PreToolUse"

	// PostToolUse fires after a tool executes.
	PostToolUse Event = "PostToolUse"

	// UserPromptSubmit fires when the user submits a prompt.
	UserPromptSubmit Event = "UserPromptSubmit"

	// Notification fires for agent notifications.
	Notification Event = "Notification"

	// SessionStart fires when a session begins.
	SessionStart Event = "SessionStart"

	// SessionEnd fires when a session ends.
	SessionEnd Event = "SessionEnd"

	// Stop fires when the agent finishes responding.
	Stop Event = "Stop"

	// SubagentStop fires when a subagent finishes.
	SubagentStop Event = "SubagentStop"

	// PreCompact fires before conversation compaction.
	PreCompact Event = "PreCompact"
)

// Callback handles one hook invocation. The input map is the raw
// JSON object the agent sent; toolUseID is empty when the event has no
// associated tool use. The returned map becomes the hook's output in
// the control response; returning nil means no output.
type Callback func(ctx context.Context, input map[string]any, toolUseID string) (map[string]any, error)

// Matcher pairs a pattern with the callbacks to run when it applies.
// An empty pattern or "*" matches every invocation of the event;
// anything else must equal the input's tool_name exactly.
type Matcher struct {
	Pattern   string
	Callbacks []Callback
}

// Matches reports whether the matcher applies to the given input.
func (m Matcher) Matches(input map[string]any) bool {
	if m.Pattern == "" || m.Pattern == "*" {
		return true
	}
	toolName, ok := input["tool_name"].(string)
	if !ok {
		return false
	}
	return toolName == m.Pattern
}
