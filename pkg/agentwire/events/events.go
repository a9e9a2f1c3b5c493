// Package events normalizes the agent's streaming wire events into a
// closed union of semantic events delivered through a turn's event
// channel.
//
// The wire protocol emits message and content-block lifecycle events
// carrying incremental text, thinking, and tool-input fragments. An
// Accumulator tracks per-message state (block kinds, concatenated
// fragments, the last observed stop reason) so consumers receive typed
// events and a MessageStop that already knows whether the turn is over.
package events

import "encoding/json"

// Stop reasons the agent attaches to message_delta events. The set is
// open: unrecognized values pass through verbatim.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonToolUse      = "tool_use"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
)

// Event is one semantic occurrence on a turn's stream.
type Event interface{ event() }

// MessageStart opens a new assistant message within the active turn. A
// single turn may span several messages when tool use interleaves.
type MessageStart struct {
	MessageID string
	Model     string
	Role      string
}

// TextDelta carries an incremental text fragment for one content block.
type TextDelta struct {
	Index int
	Text  string
}

// ThinkingDelta carries an incremental thinking fragment for one
// content block.
type ThinkingDelta struct {
	Index    int
	Thinking string
}

// ToolUseStart opens a tool-use content block. Input arrives
// incrementally through ToolInputDelta events.
type ToolUseStart struct {
	Index    int
	ToolID   string
	ToolName string
}

// ToolInputDelta carries a fragment of a tool-use block's input JSON.
// Fragments concatenate into a complete JSON document by block stop.
type ToolInputDelta struct {
	Index       int
	PartialJSON string
}

// ContentBlockStop closes the content block at Index.
type ContentBlockStop struct {
	Index int
}

// MessageDelta surfaces message-level metadata changes, notably the
// stop reason. StopReason is empty until the agent reports one.
type MessageDelta struct {
	StopReason   string
	StopSequence string
}

// MessageStop closes the current message. StopReason is the last one
// observed for this message; StructuredOutput is the optional payload
// attached to the stop event, nil when absent.
type MessageStop struct {
	MessageID        string
	StopReason       string
	StructuredOutput json.RawMessage
}

// ErrorEvent reports an error the agent emitted on the stream, or a
// recoverable engine-side fault such as an undecodable line.
type ErrorEvent struct {
	Code    string
	Message string
}

// PlainMessage wraps a non-event wire object (result summaries, system
// notices) routed to the active turn without normalization.
type PlainMessage struct {
	Type string
	Raw  json.RawMessage
}

func (MessageStart) event()     {}
func (TextDelta) event()        {}
func (ThinkingDelta) event()    {}
func (ToolUseStart) event()     {}
func (ToolInputDelta) event()   {}
func (ContentBlockStop) event() {}
func (MessageDelta) event()     {}
func (MessageStop) event()      {}
func (ErrorEvent) event()       {}
func (PlainMessage) event()     {}

// Terminal reports whether this stop ends the turn. A "tool_use" stop
// reason means the agent will continue with a follow-up message in the
// same turn once tool results are in.
func (s MessageStop) Terminal() bool {
	return s.StopReason != StopReasonToolUse
}
