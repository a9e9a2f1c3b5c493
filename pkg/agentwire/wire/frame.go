// Package wire implements the line codec for the agent control protocol:
// newline-delimited UTF-8 JSON objects carrying control requests, control
// responses, streaming events, and plain messages.
//
// The codec is stateless. Type and subtype strings are preserved verbatim so
// that protocol additions decode as opaque values instead of failing.
package wire

import "encoding/json"

// Top-level frame type discriminators.
const (
	TypeControlRequest  = "control_request"
	TypeControlResponse = "control_response"
	TypeControlCancel   = "control_cancel_request"
	TypeStreamEvent     = "stream_event"
)

// Control request subtypes issued by the engine.
const (
	SubtypeInitialize        = "initialize"
	SubtypeInterrupt         = "interrupt"
	SubtypeSetModel          = "set_model"
	SubtypeSetPermissionMode = "set_permission_mode"
	SubtypeRewindFiles       = "rewind_files"
	SubtypeMCPStatus         = "mcp_status"
)

// Control request subtypes issued by the remote agent.
const (
	SubtypeHookCallback = "hook_callback"
	SubtypeCanUseTool   = "can_use_tool"
	SubtypeToolCall     = "tool_call"
	SubtypeMCPMessage   = "mcp_message"
)

// Control response outcome subtypes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Frame is one decoded protocol line.
type Frame interface {
	frame()
}

// ControlRequest is an out-of-band request, in either direction, correlated
// by RequestID. Request holds the full request object including the subtype
// and its subtype-specific fields.
type ControlRequest struct {
	RequestID string
	Subtype   string
	Request   json.RawMessage
}

func (ControlRequest) frame() {}

// ControlResponse is the answer to a ControlRequest. Subtype is "success" or
// "error", preserved verbatim; Result carries the success payload and Error
// the failure message.
type ControlResponse struct {
	RequestID string
	Subtype   string
	Result    json.RawMessage
	Error     string
}

func (ControlResponse) frame() {}

// Succeeded reports whether the response carries a success outcome.
func (r ControlResponse) Succeeded() bool {
	return r.Subtype != OutcomeError
}

// ControlCancel asks the receiver to abandon work on an in-flight control
// request it has not answered yet.
type ControlCancel struct {
	RequestID string
}

func (ControlCancel) frame() {}

// StreamEvent is a streaming generation event. Raw holds the whole line
// object; the event may be wrapped under an "event" envelope key or appear
// bare, and normalization unwraps it.
type StreamEvent struct {
	Raw json.RawMessage
}

func (StreamEvent) frame() {}

// PlainMessage is any frame that is neither control traffic nor a streaming
// event. Type is preserved verbatim for forward compatibility.
type PlainMessage struct {
	Type string
	Raw  json.RawMessage
}

func (PlainMessage) frame() {}

// bareEventKinds are stream event types that may arrive without the
// stream_event envelope.
var bareEventKinds = map[string]bool{
	"message_start":       true,
	"message_delta":       true,
	"message_stop":        true,
	"content_block_start": true,
	"content_block_delta": true,
	"content_block_stop":  true,
	"error":               true,
	"ping":                true,
}
