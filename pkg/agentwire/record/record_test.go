package record_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/agentwire/pkg/agentwire/agenttest"
	"github.com/conneroisu/agentwire/pkg/agentwire/record"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

func TestRecorderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := record.NewRecorder(&buf)

	rec.RecordOut([]byte(`{"type":"user","message":{"role":"user"}}`))
	rec.RecordIn(agenttest.SystemInit("sess_1", "test-model"))
	rec.RecordIn([]byte("not json at all"))
	require.NoError(t, rec.Err())

	entries, err := record.ReadTranscript(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, record.DirOut, entries[0].Dir)
	assert.Equal(t, record.DirIn, entries[1].Dir)
	assert.JSONEq(t, `{"type":"user","message":{"role":"user"}}`, string(entries[0].Bytes()))

	// The non-JSON line survives via the text field.
	assert.Empty(t, entries[2].Line)
	assert.Equal(t, "not json at all", string(entries[2].Bytes()))

	for _, e := range entries {
		assert.False(t, e.TS.IsZero())
	}
}

func TestReadTranscriptRejectsMalformedEntries(t *testing.T) {
	_, err := record.ReadTranscript(strings.NewReader("{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = record.ReadTranscript(strings.NewReader(`{"ts":"2026-01-02T03:04:05Z","dir":"sideways","line":{}}` + "\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestReadTranscriptSkipsBlankLines(t *testing.T) {
	var buf bytes.Buffer
	rec := record.NewRecorder(&buf)
	rec.RecordIn(agenttest.MessageStop())
	buf.WriteString("\n\n")
	rec.RecordIn(agenttest.MessageStop())

	entries, err := record.ReadTranscript(&buf)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSummarizeCountsTurnsAndCallbacks(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) time.Time { return base.Add(d) }
	entry := func(ts time.Time, dir record.Dir, line []byte) record.Entry {
		return record.Entry{TS: ts, Dir: dir, Line: line}
	}

	entries := []record.Entry{
		entry(at(0), record.DirIn, agenttest.SystemInit("sess_1", "test-model")),
		entry(at(10*time.Millisecond), record.DirOut, []byte(`{"type":"user","message":{"role":"user"}}`)),
		entry(at(20*time.Millisecond), record.DirIn, agenttest.MessageStart("msg_1", "test-model")),
		entry(at(30*time.Millisecond), record.DirIn, agenttest.TextBlockStart(0)),
		entry(at(40*time.Millisecond), record.DirIn, agenttest.TextDelta(0, "hello")),
		entry(at(50*time.Millisecond), record.DirIn, agenttest.ContentBlockStop(0)),
		entry(at(60*time.Millisecond), record.DirIn, agenttest.MessageDelta("end_turn")),
		entry(at(70*time.Millisecond), record.DirIn, agenttest.MessageStop()),
		entry(at(80*time.Millisecond), record.DirIn,
			agenttest.ControlRequest("req_cb_1", wire.SubtypeHookCallback, map[string]any{"callback_id": "hook_1"})),
		entry(at(130*time.Millisecond), record.DirOut, agenttest.SuccessResponse("req_cb_1", map[string]any{})),
	}

	s := record.Summarize(entries)

	assert.Equal(t, 10, s.Entries)
	assert.Equal(t, 8, s.InLines)
	assert.Equal(t, 2, s.OutLines)
	assert.Equal(t, 1, s.Turns)
	assert.Zero(t, s.DecodeErrors)
	assert.Equal(t, 6, s.Frames[wire.TypeStreamEvent])
	assert.Equal(t, 1, s.Frames[wire.TypeControlRequest])
	assert.Equal(t, 1, s.Frames[wire.TypeControlResponse])

	cb := s.Callbacks[wire.SubtypeHookCallback]
	require.Equal(t, 1, cb.Count)
	assert.Equal(t, 50*time.Millisecond, cb.Total)
	assert.Equal(t, 50*time.Millisecond, cb.Avg())

	assert.Equal(t, at(0), s.Start)
	assert.Equal(t, at(130*time.Millisecond), s.End)
}

func TestReplayerRewritesResponseIDs(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []record.Entry{
		{TS: base, Dir: record.DirOut,
			Line: wireControlRequest(t, "req_old_1", wire.SubtypeInterrupt)},
		{TS: base.Add(5 * time.Millisecond), Dir: record.DirIn,
			Line: agenttest.SuccessResponse("req_old_1", map[string]any{})},
	}

	r := record.NewReplayer(entries, record.ReplayerConfig{})
	require.NoError(t, r.Connect(context.Background()))
	defer r.Close()

	// The live session issues its own request ID for the same request.
	live, err := wire.EncodeControlRequest("req_live_9", wire.SubtypeInterrupt, nil)
	require.NoError(t, err)
	require.NoError(t, r.WriteLine(context.Background(), live))

	lines, errs := r.ReadLines(context.Background())
	select {
	case line := <-lines:
		f, err := wire.Decode(line)
		require.NoError(t, err)
		resp, ok := f.(wire.ControlResponse)
		require.True(t, ok)
		assert.Equal(t, "req_live_9", resp.RequestID)
	case err := <-errs:
		t.Fatalf("unexpected transport error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("replayer never emitted the response")
	}

	// The transcript is exhausted, so the stream ends.
	select {
	case _, ok := <-lines:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("lines channel never closed")
	}
}

func wireControlRequest(t *testing.T, id, subtype string) []byte {
	t.Helper()
	line, err := wire.EncodeControlRequest(id, subtype, nil)
	require.NoError(t, err)

	return line
}
