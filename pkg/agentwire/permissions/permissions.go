// Package permissions models the can_use_tool callback: the agent asks
// whether a proposed tool use may proceed, and the application answers
// with an allow or deny decision.
//
// When no handler is registered the session answers with the default
// decision from its configuration. There is no silent allow.
package permissions

import "context"

// Mode selects how the agent gates tool use for the whole session.
type Mode string

const (
	ModeDefault           Mode = "default"
	ModeAcceptEdits       Mode = "acceptEdits"
	ModePlan              Mode = "plan"
	ModeBypassPermissions Mode = "bypassPermissions"
)

// Behavior is the verdict of a permission decision.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// Request is one permission check sent by the agent.
type Request struct {
	ToolName    string
	Input       map[string]any
	Suggestions []Update
	ToolUseID   string
}

// Update is a permission rule change the agent suggests alongside a
// check, e.g. "always allow this tool in this directory".
type Update struct {
	Type        string   `json:"type"`
	Rules       []Rule   `json:"rules,omitempty"`
	Behavior    string   `json:"behavior,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Directories []string `json:"directories,omitempty"`
	Destination string   `json:"destination,omitempty"`
}

// Rule names a tool and an optional argument pattern within an Update.
type Rule struct {
	ToolName    string  `json:"toolName"`
	RuleContent *string `json:"ruleContent,omitempty"`
}

// Decision answers a permission check. For allows, UpdatedInput
// optionally replaces the tool input. For denies, Message explains the
// refusal and Interrupt asks the agent to abort the turn.
type Decision struct {
	Behavior     Behavior
	UpdatedInput map[string]any
	Message      string
	Interrupt    bool
}

// Handler decides one permission check. Returning an error denies the
// request; permission checks fail closed.
type Handler func(ctx context.Context, req Request) (Decision, error)

// Allow returns an allow decision with the input unchanged.
func Allow() Decision {
	return Decision{Behavior: BehaviorAllow}
}

// AllowWithInput returns an allow decision that replaces the tool
// input.
func AllowWithInput(input map[string]any) Decision {
	return Decision{Behavior: BehaviorAllow, UpdatedInput: input}
}

// Deny returns a deny decision carrying message.
func Deny(message string) Decision {
	return Decision{Behavior: BehaviorDeny, Message: message}
}

// Valid reports whether the decision carries a recognized behavior.
func (d Decision) Valid() bool {
	return d.Behavior == BehaviorAllow || d.Behavior == BehaviorDeny
}

// ToWire renders the decision as a control response payload. A zero
// decision renders as a deny.
func (d Decision) ToWire() map[string]any {
	if d.Behavior == BehaviorAllow {
		out := map[string]any{"behavior": "allow"}
		if d.UpdatedInput != nil {
			out["updatedInput"] = d.UpdatedInput
		}
		return out
	}

	msg := d.Message
	if msg == "" {
		msg = "permission denied"
	}
	out := map[string]any{"behavior": "deny", "message": msg}
	if d.Interrupt {
		out["interrupt"] = true
	}
	return out
}
