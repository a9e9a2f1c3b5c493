package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

func apply(t *testing.T, a *Accumulator, line string) []Event {
	t.Helper()
	evs, err := a.Apply(json.RawMessage(line))
	require.NoError(t, err)
	return evs
}

func TestAccumulatorTextStream(t *testing.T) {
	a := NewAccumulator()

	evs := apply(t, a, `{"type":"message_start","message":{"id":"msg_1","model":"opus","role":"assistant"}}`)
	require.Len(t, evs, 1)
	start, ok := evs[0].(MessageStart)
	require.True(t, ok)
	assert.Equal(t, "msg_1", start.MessageID)
	assert.Equal(t, "opus", start.Model)

	apply(t, a, `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)

	evs = apply(t, a, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, TextDelta{Index: 0, Text: "Hello"}, evs[0])

	evs = apply(t, a, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":", world"}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, "Hello, world", a.Text())

	evs = apply(t, a, `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, MessageDelta{StopReason: "end_turn"}, evs[0])

	evs = apply(t, a, `{"type":"message_stop"}`)
	require.Len(t, evs, 1)
	stop, ok := evs[0].(MessageStop)
	require.True(t, ok)
	assert.Equal(t, "msg_1", stop.MessageID)
	assert.Equal(t, StopReasonEndTurn, stop.StopReason)
	assert.True(t, stop.Terminal())
}

func TestAccumulatorEnvelopeUnwrap(t *testing.T) {
	tests := map[string]string{
		"bare event":    `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
		"wrapped event": `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}}`,
	}

	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			a := NewAccumulator()
			evs := apply(t, a, line)
			require.Len(t, evs, 1)
			assert.Equal(t, TextDelta{Index: 0, Text: "Hi"}, evs[0])
		})
	}
}

func TestAccumulatorToolUseDoesNotTerminate(t *testing.T) {
	a := NewAccumulator()

	apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)
	apply(t, a, `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"Bash"}}`)
	apply(t, a, `{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`)

	evs := apply(t, a, `{"type":"message_stop"}`)
	require.Len(t, evs, 1)
	stop := evs[0].(MessageStop)
	assert.Equal(t, StopReasonToolUse, stop.StopReason)
	assert.False(t, stop.Terminal())

	// The follow-up message in the same turn resets state.
	apply(t, a, `{"type":"message_start","message":{"id":"msg_2"}}`)
	assert.Equal(t, "msg_2", a.MessageID())
	assert.Empty(t, a.StopReason())
	assert.Empty(t, a.Text())

	apply(t, a, `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)
	evs = apply(t, a, `{"type":"message_stop"}`)
	stop = evs[0].(MessageStop)
	assert.True(t, stop.Terminal())
}

func TestAccumulatorNullStopReasonIsTerminal(t *testing.T) {
	a := NewAccumulator()

	apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)
	apply(t, a, `{"type":"message_delta","delta":{"stop_reason":null}}`)

	evs := apply(t, a, `{"type":"message_stop"}`)
	stop := evs[0].(MessageStop)
	assert.Empty(t, stop.StopReason)
	assert.True(t, stop.Terminal())
}

func TestAccumulatorToolInput(t *testing.T) {
	a := NewAccumulator()

	apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)

	evs := apply(t, a, `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"Read"}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, ToolUseStart{Index: 1, ToolID: "toolu_9", ToolName: "Read"}, evs[0])

	apply(t, a, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`)
	apply(t, a, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"/tmp/x\"}"}}`)

	input, ok := a.ToolInput(1)
	require.True(t, ok)
	assert.JSONEq(t, `{"path":"/tmp/x"}`, input)

	name, ok := a.ToolName(1)
	require.True(t, ok)
	assert.Equal(t, "Read", name)

	_, ok = a.ToolInput(0)
	assert.False(t, ok)
}

func TestAccumulatorThinking(t *testing.T) {
	a := NewAccumulator()

	apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)
	apply(t, a, `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`)

	evs := apply(t, a, `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, ThinkingDelta{Index: 0, Thinking: "hmm"}, evs[0])

	// Signature deltas carry nothing the engine consumes.
	evs = apply(t, a, `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"abc"}}`)
	assert.Empty(t, evs)
}

func TestAccumulatorStructuredOutputPrecedence(t *testing.T) {
	tests := map[string]struct {
		line string
		want string
	}{
		"top level only": {
			line: `{"type":"message_stop","structured_output":{"a":1}}`,
			want: `{"a":1}`,
		},
		"message nested only": {
			line: `{"type":"message_stop","message":{"structured_output":{"b":2}}}`,
			want: `{"b":2}`,
		},
		"top level wins over nested": {
			line: `{"type":"message_stop","structured_output":{"a":1},"message":{"structured_output":{"b":2}}}`,
			want: `{"a":1}`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a := NewAccumulator()
			apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)
			apply(t, a, `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)

			evs := apply(t, a, tc.line)
			require.Len(t, evs, 1)
			stop := evs[0].(MessageStop)
			assert.JSONEq(t, tc.want, string(stop.StructuredOutput))
		})
	}
}

func TestAccumulatorStructuredOutputAbsent(t *testing.T) {
	a := NewAccumulator()
	apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)

	evs := apply(t, a, `{"type":"message_stop"}`)
	stop := evs[0].(MessageStop)
	assert.Nil(t, stop.StructuredOutput)
}

func TestAccumulatorErrorEvent(t *testing.T) {
	a := NewAccumulator()

	evs := apply(t, a, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, ErrorEvent{Code: "overloaded_error", Message: "Overloaded"}, evs[0])
}

func TestAccumulatorIgnoresUnknownAndPing(t *testing.T) {
	a := NewAccumulator()

	for _, line := range []string{
		`{"type":"ping"}`,
		`{"type":"brand_new_event_kind","index":3}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"novel_delta","x":1}}`,
	} {
		evs := apply(t, a, line)
		assert.Empty(t, evs, "line %s", line)
	}
}

func TestAccumulatorDeltaWithoutStart(t *testing.T) {
	a := NewAccumulator()

	// A delta for a block whose start was never observed must not
	// crash; the block is created implicitly.
	evs := apply(t, a, `{"type":"content_block_delta","index":2,"delta":{"type":"text_delta","text":"x"}}`)
	require.Len(t, evs, 1)
	assert.Equal(t, "x", a.Text())
}

func TestAccumulatorMalformedLeavesStateIntact(t *testing.T) {
	a := NewAccumulator()
	apply(t, a, `{"type":"message_start","message":{"id":"msg_1"}}`)
	apply(t, a, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`)

	_, err := a.Apply(json.RawMessage(`{"type":"message_start","message":5}`))
	require.Error(t, err)
	assert.True(t, agenterrs.IsDecodeError(err))

	// Prior message state survives the bad line.
	assert.Equal(t, "msg_1", a.MessageID())
	assert.Equal(t, "Hi", a.Text())
}
