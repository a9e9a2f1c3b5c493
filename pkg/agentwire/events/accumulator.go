package events

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

type blockKind int

const (
	blockText blockKind = iota
	blockThinking
	blockToolUse
)

type blockState struct {
	kind     blockKind
	toolID   string
	toolName string
	text     strings.Builder
	input    strings.Builder
}

// Accumulator normalizes raw stream events into semantic events while
// tracking per-message state. State resets at each message_start, so a
// single Accumulator serves a whole session.
//
// An Accumulator is not safe for concurrent use; the session actor is
// its only caller.
type Accumulator struct {
	messageID    string
	model        string
	role         string
	blocks       map[int]*blockState
	stopReason   string
	stopSequence string
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{blocks: make(map[int]*blockState)}
}

type eventEnvelope struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

type eventBody struct {
	Type             string          `json:"type"`
	Index            int             `json:"index"`
	Message          json.RawMessage `json:"message"`
	ContentBlock     *contentBlock   `json:"content_block"`
	Delta            *deltaBody      `json:"delta"`
	Error            *errorBody      `json:"error"`
	StopReason       *string         `json:"stop_reason"`
	StructuredOutput json.RawMessage `json:"structured_output"`
}

type messageBody struct {
	ID               string          `json:"id"`
	Model            string          `json:"model"`
	Role             string          `json:"role"`
	StopReason       *string         `json:"stop_reason"`
	StructuredOutput json.RawMessage `json:"structured_output"`
}

type contentBlock struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

type deltaBody struct {
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	Thinking     string  `json:"thinking"`
	PartialJSON  string  `json:"partial_json"`
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Apply normalizes one raw stream event, returning the semantic events
// it produced. Events wrapped in a stream_event envelope and bare event
// objects are both accepted. Unknown event kinds produce no events and
// no error. A malformed event returns a decode error and leaves the
// accumulator untouched.
func (a *Accumulator) Apply(raw json.RawMessage) ([]Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, agenterrs.NewDecodeError("malformed stream event", raw, err)
	}

	body := raw
	if env.Type == "stream_event" {
		if len(env.Event) == 0 {
			return nil, agenterrs.NewDecodeError("stream_event missing event body", raw, nil)
		}
		body = env.Event
	}

	var ev eventBody
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, agenterrs.NewDecodeError("malformed stream event body", body, err)
	}

	switch ev.Type {
	case "message_start":
		return a.applyMessageStart(ev)
	case "content_block_start":
		return a.applyBlockStart(ev)
	case "content_block_delta":
		return a.applyBlockDelta(ev)
	case "content_block_stop":
		return []Event{ContentBlockStop{Index: ev.Index}}, nil
	case "message_delta":
		return a.applyMessageDelta(ev)
	case "message_stop":
		return a.applyMessageStop(ev)
	case "error":
		if ev.Error == nil {
			return []Event{ErrorEvent{Message: "unknown stream error"}}, nil
		}
		return []Event{ErrorEvent{Code: ev.Error.Type, Message: ev.Error.Message}}, nil
	case "ping":
		return nil, nil
	default:
		// Unrecognized event kinds are skipped so protocol additions
		// do not break older engines.
		return nil, nil
	}
}

func (a *Accumulator) applyMessageStart(ev eventBody) ([]Event, error) {
	// Parse before any reset so a malformed start leaves prior message
	// state intact.
	var msg messageBody
	if len(ev.Message) > 0 {
		if err := json.Unmarshal(ev.Message, &msg); err != nil {
			return nil, agenterrs.NewDecodeError("malformed message_start", ev.Message, err)
		}
	}

	a.blocks = make(map[int]*blockState)
	a.stopReason = ""
	a.stopSequence = ""
	a.messageID = msg.ID
	a.model = msg.Model
	a.role = msg.Role

	return []Event{MessageStart{
		MessageID: a.messageID,
		Model:     a.model,
		Role:      a.role,
	}}, nil
}

func (a *Accumulator) applyBlockStart(ev eventBody) ([]Event, error) {
	cb := ev.ContentBlock
	if cb == nil {
		return nil, nil
	}

	switch cb.Type {
	case "tool_use", "server_tool_use", "mcp_tool_use":
		a.blocks[ev.Index] = &blockState{
			kind:     blockToolUse,
			toolID:   cb.ID,
			toolName: cb.Name,
		}
		return []Event{ToolUseStart{
			Index:    ev.Index,
			ToolID:   cb.ID,
			ToolName: cb.Name,
		}}, nil

	case "thinking":
		b := &blockState{kind: blockThinking}
		a.blocks[ev.Index] = b
		if cb.Thinking == "" {
			return nil, nil
		}
		b.text.WriteString(cb.Thinking)
		return []Event{ThinkingDelta{Index: ev.Index, Thinking: cb.Thinking}}, nil

	default:
		// Text and any future block kinds accumulate as text.
		b := &blockState{kind: blockText}
		a.blocks[ev.Index] = b
		if cb.Text == "" {
			return nil, nil
		}
		b.text.WriteString(cb.Text)
		return []Event{TextDelta{Index: ev.Index, Text: cb.Text}}, nil
	}
}

func (a *Accumulator) applyBlockDelta(ev eventBody) ([]Event, error) {
	if ev.Delta == nil {
		return nil, nil
	}

	switch ev.Delta.Type {
	case "text_delta":
		b := a.block(ev.Index, blockText)
		b.text.WriteString(ev.Delta.Text)
		return []Event{TextDelta{Index: ev.Index, Text: ev.Delta.Text}}, nil

	case "thinking_delta":
		b := a.block(ev.Index, blockThinking)
		b.text.WriteString(ev.Delta.Thinking)
		return []Event{ThinkingDelta{Index: ev.Index, Thinking: ev.Delta.Thinking}}, nil

	case "input_json_delta":
		b := a.block(ev.Index, blockToolUse)
		b.input.WriteString(ev.Delta.PartialJSON)
		return []Event{ToolInputDelta{Index: ev.Index, PartialJSON: ev.Delta.PartialJSON}}, nil

	default:
		// signature_delta and unrecognized delta kinds carry nothing
		// the engine consumes.
		return nil, nil
	}
}

func (a *Accumulator) applyMessageDelta(ev eventBody) ([]Event, error) {
	out := MessageDelta{}
	if ev.Delta != nil {
		if ev.Delta.StopReason != nil {
			a.stopReason = *ev.Delta.StopReason
			out.StopReason = *ev.Delta.StopReason
		}
		if ev.Delta.StopSequence != nil {
			a.stopSequence = *ev.Delta.StopSequence
			out.StopSequence = *ev.Delta.StopSequence
		}
	}
	return []Event{out}, nil
}

func (a *Accumulator) applyMessageStop(ev eventBody) ([]Event, error) {
	stop := MessageStop{
		MessageID:  a.messageID,
		StopReason: a.stopReason,
	}

	var msg messageBody
	if len(ev.Message) > 0 {
		if err := json.Unmarshal(ev.Message, &msg); err != nil {
			return nil, agenterrs.NewDecodeError("malformed message_stop", ev.Message, err)
		}
	}

	// The stop event itself may restate the stop reason; an explicit
	// value wins over the accumulated one.
	if ev.StopReason != nil {
		stop.StopReason = *ev.StopReason
	} else if msg.StopReason != nil {
		stop.StopReason = *msg.StopReason
	}

	// Structured output may sit at the top level or nested under the
	// message object. The top-level field is authoritative when both
	// are present.
	switch {
	case len(ev.StructuredOutput) > 0:
		stop.StructuredOutput = ev.StructuredOutput
	case len(msg.StructuredOutput) > 0:
		stop.StructuredOutput = msg.StructuredOutput
	}

	return []Event{stop}, nil
}

// block returns the state for index, creating it with kind when a
// delta arrives for a block whose start event was never seen.
func (a *Accumulator) block(index int, kind blockKind) *blockState {
	if b, ok := a.blocks[index]; ok {
		return b
	}
	b := &blockState{kind: kind}
	a.blocks[index] = b
	return b
}

// MessageID returns the ID of the message currently being accumulated.
func (a *Accumulator) MessageID() string { return a.messageID }

// Model returns the model named by the current message_start.
func (a *Accumulator) Model() string { return a.model }

// StopReason returns the last stop reason observed for the current
// message, or "" when none has arrived.
func (a *Accumulator) StopReason() string { return a.stopReason }

// Text returns the concatenated text of the current message's text
// blocks in index order.
func (a *Accumulator) Text() string {
	indexes := make([]int, 0, len(a.blocks))
	for i, b := range a.blocks {
		if b.kind == blockText {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	var sb strings.Builder
	for _, i := range indexes {
		sb.WriteString(a.blocks[i].text.String())
	}
	return sb.String()
}

// ToolInput returns the accumulated input JSON for the tool-use block
// at index, and whether such a block exists.
func (a *Accumulator) ToolInput(index int) (string, bool) {
	b, ok := a.blocks[index]
	if !ok || b.kind != blockToolUse {
		return "", false
	}
	return b.input.String(), true
}

// ToolName returns the tool name for the tool-use block at index, and
// whether such a block exists.
func (a *Accumulator) ToolName(index int) (string, bool) {
	b, ok := a.blocks[index]
	if !ok || b.kind != blockToolUse {
		return "", false
	}
	return b.toolName, true
}
