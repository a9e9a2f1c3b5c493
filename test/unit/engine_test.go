// Package unit_test exercises the session engine end to end through
// its public API, with a scripted fake transport standing in for the
// agent process.
package unit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/agentwire/pkg/agentwire"
	"github.com/conneroisu/agentwire/pkg/agentwire/agenttest"
	"github.com/conneroisu/agentwire/pkg/agentwire/events"
	"github.com/conneroisu/agentwire/pkg/agentwire/hooking"
	"github.com/conneroisu/agentwire/pkg/agentwire/options"
	"github.com/conneroisu/agentwire/pkg/agentwire/permissions"
	"github.com/conneroisu/agentwire/pkg/agentwire/record"
	"github.com/conneroisu/agentwire/pkg/agentwire/tools"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

const wait = 2 * time.Second

func connect(t *testing.T, opts options.Options) (*agentwire.Session, *agenttest.FakeTransport) {
	t.Helper()

	ft := agenttest.NewFakeTransport()
	go func() {
		writes := ft.WaitWrites(1, wait)
		if len(writes) == 0 {
			return
		}
		ft.Feed(agenttest.SuccessResponse(agenttest.RequestIDOf(writes[0]), map[string]any{}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	s, err := agentwire.Connect(ctx, ft, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, ft
}

// parseResponse decodes one outbound control_response line.
func parseResponse(t *testing.T, line []byte) (requestID, subtype string, payload map[string]any, errMsg string) {
	t.Helper()

	var resp struct {
		Type     string `json:"type"`
		Response struct {
			Subtype   string          `json:"subtype"`
			RequestID string          `json:"request_id"`
			Response  map[string]any  `json:"response"`
			Error     json.RawMessage `json:"error"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(line, &resp))
	require.Equal(t, "control_response", resp.Type)

	var msg string
	if len(resp.Response.Error) > 0 {
		_ = json.Unmarshal(resp.Response.Error, &msg)
		if msg == "" {
			msg = string(resp.Response.Error)
		}
	}
	return resp.Response.RequestID, resp.Response.Subtype, resp.Response.Response, msg
}

func TestHookCallbackRoundTrip(t *testing.T) {
	var seen map[string]any
	hooks := hooking.NewRegistry()
	hooks.Add(hooking.PreToolUse, "*", func(_ context.Context, input map[string]any, _ string) (map[string]any, error) {
		seen = input
		return map[string]any{"decision": "approve"}, nil
	})

	_, ft := connect(t, options.Options{Hooks: hooks})

	// The handshake advertised callback IDs; the agent addresses the
	// first one directly.
	ft.Feed(agenttest.ControlRequest("srv_hook", "hook_callback", map[string]any{
		"callback_id": "hook_0",
		"input": map[string]any{
			"hook_event_name": "PreToolUse",
			"tool_name":       "Bash",
		},
	}))

	writes := ft.WaitWrites(2, wait)
	require.Len(t, writes, 2)
	id, subtype, payload, _ := parseResponse(t, writes[1])
	assert.Equal(t, "srv_hook", id)
	assert.Equal(t, wire.OutcomeSuccess, subtype)
	assert.Equal(t, "approve", payload["decision"])
	assert.Equal(t, "Bash", seen["tool_name"])
}

func TestPermissionDefaultDeniesWithoutHandler(t *testing.T) {
	_, ft := connect(t, options.Options{})

	ft.Feed(agenttest.ControlRequest("srv_perm", "can_use_tool", map[string]any{
		"tool_name": "Bash",
		"input":     map[string]any{"command": "rm -rf /"},
	}))

	writes := ft.WaitWrites(2, wait)
	require.Len(t, writes, 2)
	id, subtype, payload, _ := parseResponse(t, writes[1])
	assert.Equal(t, "srv_perm", id)
	assert.Equal(t, wire.OutcomeSuccess, subtype)
	assert.Equal(t, "deny", payload["behavior"])
	assert.NotEmpty(t, payload["message"])
}

func TestPermissionHandlerAllows(t *testing.T) {
	_, ft := connect(t, options.Options{
		PermissionHandler: func(_ context.Context, req permissions.Request) (permissions.Decision, error) {
			if req.ToolName == "Read" {
				return permissions.Allow(), nil
			}
			return permissions.Deny("only reads"), nil
		},
	})

	ft.Feed(agenttest.ControlRequest("srv_perm", "can_use_tool", map[string]any{
		"tool_name": "Read",
		"input":     map[string]any{"file_path": "/tmp/x"},
	}))

	writes := ft.WaitWrites(2, wait)
	_, subtype, payload, _ := parseResponse(t, writes[1])
	assert.Equal(t, wire.OutcomeSuccess, subtype)
	assert.Equal(t, "allow", payload["behavior"])
}

func TestUnknownCallbackSubtypeGetsErrorResponse(t *testing.T) {
	_, ft := connect(t, options.Options{})

	ft.Feed(agenttest.ControlRequest("srv_new", "hologram_sync", map[string]any{}))

	writes := ft.WaitWrites(2, wait)
	require.Len(t, writes, 2)
	id, subtype, _, msg := parseResponse(t, writes[1])
	assert.Equal(t, "srv_new", id)
	assert.Equal(t, wire.OutcomeError, subtype)
	assert.Contains(t, msg, "hologram_sync")
}

func TestUnknownToolIsProtocolError(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{
		Name:    "echo",
		Handler: func(_ context.Context, args map[string]any) (any, error) { return args["text"], nil },
	}))
	_, ft := connect(t, options.Options{Tools: registry})

	ft.Feed(agenttest.ControlRequest("srv_tool", "tool_call", map[string]any{
		"tool_name": "no_such_tool",
	}))

	writes := ft.WaitWrites(2, wait)
	_, subtype, _, msg := parseResponse(t, writes[1])
	assert.Equal(t, wire.OutcomeError, subtype)
	assert.Contains(t, msg, "no_such_tool")
}

func TestPipelinedCallbacksEachGetOneResponse(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{
		Name:    "echo",
		Handler: func(_ context.Context, args map[string]any) (any, error) { return args["text"], nil },
	}))
	_, ft := connect(t, options.Options{Tools: registry})

	for _, id := range []string{"srv_a", "srv_b", "srv_c"} {
		ft.Feed(agenttest.ControlRequest(id, "tool_call", map[string]any{
			"tool_name": "echo",
			"input":     map[string]any{"text": id},
		}))
	}

	writes := ft.WaitWrites(4, wait)
	require.Len(t, writes, 4)

	answered := map[string]int{}
	for _, line := range writes[1:] {
		id, subtype, payload, _ := parseResponse(t, line)
		answered[id]++
		assert.Equal(t, wire.OutcomeSuccess, subtype)
		assert.Equal(t, false, payload["is_error"])
	}
	assert.Equal(t, map[string]int{"srv_a": 1, "srv_b": 1, "srv_c": 1}, answered)
}

func TestRecorderCapturesBothDirections(t *testing.T) {
	var buf bytes.Buffer
	recorder := record.NewRecorder(&buf)
	s, ft := connect(t, options.Options{Recorder: recorder})

	turn, err := s.SubmitPrompt(context.Background(), "hi")
	require.NoError(t, err)
	ft.WaitWrites(2, wait)
	ft.Feed(agenttest.MessageStart("m1", "opus"))
	ft.Feed(agenttest.MessageDelta("end_turn"))
	ft.Feed(agenttest.MessageStop())
	<-turn.Done()
	require.NoError(t, s.Close())

	entries, err := record.ReadTranscript(&buf)
	require.NoError(t, err)

	var ins, outs int
	for _, e := range entries {
		switch e.Dir {
		case record.DirIn:
			ins++
		case record.DirOut:
			outs++
		}
	}
	assert.GreaterOrEqual(t, ins, 4, "handshake response + 3 stream events")
	assert.GreaterOrEqual(t, outs, 2, "initialize + prompt")

	summary := record.Summarize(entries)
	assert.Equal(t, 1, summary.Turns)
}

func TestReplayedTranscriptDrivesASession(t *testing.T) {
	// Record a minimal live session first.
	var buf bytes.Buffer
	s, ft := connect(t, options.Options{Recorder: record.NewRecorder(&buf)})
	turn, err := s.SubmitPrompt(context.Background(), "hi")
	require.NoError(t, err)
	ft.WaitWrites(2, wait)
	ft.Feed(agenttest.MessageStart("m1", "opus"))
	ft.Feed(agenttest.TextBlockStart(0))
	ft.Feed(agenttest.TextDelta(0, "Hello from the past"))
	ft.Feed(agenttest.MessageDelta("end_turn"))
	ft.Feed(agenttest.MessageStop())
	<-turn.Done()
	require.NoError(t, s.Close())

	entries, err := record.ReadTranscript(&buf)
	require.NoError(t, err)

	// Replay it as the transport of a fresh session.
	replayer := record.NewReplayer(entries, record.ReplayerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	rs, err := agentwire.Connect(ctx, replayer, options.Options{})
	require.NoError(t, err)
	defer rs.Close()

	rturn, err := rs.SubmitPrompt(ctx, "hi")
	require.NoError(t, err)

	var text string
	for ev := range rturn.Events() {
		if e, ok := ev.(events.TextDelta); ok {
			text += e.Text
		}
	}
	require.NoError(t, rturn.Err())
	assert.Equal(t, "Hello from the past", text)
}
