package agentwire

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/agentwire/pkg/agentwire/events"
)

// turnEventBuffer sizes each turn's event channel. The session actor
// blocks once the buffer fills, so consumers must drain Events while a
// turn runs.
const turnEventBuffer = 256

// Turn is one submitted prompt and the stream of semantic events it
// produces until true termination. At most one turn is active on the
// wire at a time; turns submitted while another is active wait in a
// FIFO queue with their payload unsent.
type Turn struct {
	id      string
	payload []byte
	events  chan events.Event
	done    chan struct{}

	mu        sync.Mutex
	activated time.Time
	finished  bool
	err       error
}

func newTurn(payload []byte) *Turn {
	return &Turn{
		id:      "turn_" + uuid.New().String()[:8],
		payload: payload,
		events:  make(chan events.Event, turnEventBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the turn's session-unique identifier.
func (t *Turn) ID() string { return t.id }

// Events returns the turn's event stream. The channel closes when the
// turn terminates; check Err afterwards to distinguish a clean finish
// from a session failure.
func (t *Turn) Events() <-chan events.Event { return t.events }

// Done returns a channel closed when the turn terminates.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Err returns the turn's terminal error: nil after a clean finish,
// otherwise the session failure that cut the turn short. Valid once
// Done is closed.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the turn terminates or ctx expires, discarding
// events as they arrive, and returns the terminal text accumulated
// from the turn's text deltas. Use Events directly for streaming
// consumption.
func (t *Turn) Wait(ctx context.Context) (string, error) {
	var text []byte
	for {
		select {
		case ev, ok := <-t.events:
			if !ok {
				return string(text), t.Err()
			}
			if d, isText := ev.(events.TextDelta); isText {
				text = append(text, d.Text...)
			}
		case <-ctx.Done():
			return string(text), ctx.Err()
		}
	}
}

// markActivated stamps the moment the scheduler wrote the payload.
func (t *Turn) markActivated(now time.Time) {
	t.mu.Lock()
	t.activated = now
	t.mu.Unlock()
}

// finish closes the turn exactly once. Repeat calls are no-ops so the
// close cascade and normal termination cannot double-close the sink.
func (t *Turn) finish(err error) (duration time.Duration, first bool) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return 0, false
	}
	t.finished = true
	t.err = err
	if !t.activated.IsZero() {
		duration = time.Since(t.activated)
	}
	t.mu.Unlock()

	close(t.events)
	close(t.done)
	return duration, true
}

// UserMessage renders a prompt as the wire payload of one user turn.
func UserMessage(sessionID, text string) json.RawMessage {
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	}
	if sessionID != "" {
		msg["session_id"] = sessionID
	}
	line, _ := json.Marshal(msg)
	return line
}
