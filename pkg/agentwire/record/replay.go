package record

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

// DefaultMaxGap caps the pause replayed between consecutive inbound lines.
const DefaultMaxGap = 2 * time.Second

// mappingWait bounds how long the pump holds a recorded response while the
// live session has not issued the matching request yet.
const mappingWait = 5 * time.Second

// ReplayerConfig tunes transcript pacing.
type ReplayerConfig struct {
	// Speed scales recorded gaps between inbound lines: 1 replays at the
	// original pace, 2 twice as fast. Zero or negative disables pacing.
	Speed float64

	// MaxGap caps the scaled delay between consecutive inbound lines.
	// Zero means DefaultMaxGap.
	MaxGap time.Duration
}

// Replayer re-drives a recorded transcript as a session transport. Inbound
// entries are emitted at recorded pacing; writes from the live session are
// consumed and paired by order with the transcript's outbound control
// requests, so recorded control responses are rewritten to answer the live
// session's request IDs.
type Replayer struct {
	entries []Entry
	speed   float64
	maxGap  time.Duration

	lines chan []byte
	errs  chan error
	done  chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	connected bool
	closed    bool
	writes    [][]byte
	oldIDs    []string
	expected  map[string]bool
	idMap     map[string]string
	g         *errgroup.Group
}

var _ ports.Transport = (*Replayer)(nil)

// NewReplayer builds a replayer over a parsed transcript.
func NewReplayer(entries []Entry, cfg ReplayerConfig) *Replayer {
	maxGap := cfg.MaxGap
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}

	r := &Replayer{
		entries:  entries,
		speed:    cfg.Speed,
		maxGap:   maxGap,
		lines:    make(chan []byte, 64),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		expected: make(map[string]bool),
		idMap:    make(map[string]string),
	}
	r.cond = sync.NewCond(&r.mu)

	return r
}

// Connect indexes the transcript's outbound control requests and starts
// the inbound pump.
func (r *Replayer) Connect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return agenterrs.NewSessionClosed()
	}
	if r.connected {
		return nil
	}

	for _, e := range r.entries {
		if e.Dir != DirOut {
			continue
		}
		f, err := wire.Decode(e.Bytes())
		if err != nil {
			continue
		}
		if req, ok := f.(wire.ControlRequest); ok {
			r.oldIDs = append(r.oldIDs, req.RequestID)
			r.expected[req.RequestID] = true
		}
	}

	r.connected = true
	r.g = &errgroup.Group{}
	r.g.Go(r.pump)

	return nil
}

// WriteLine consumes one line from the live session. Control requests are
// paired in order with the transcript's outbound requests.
func (r *Replayer) WriteLine(_ context.Context, line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return agenterrs.NewSessionClosed()
	}
	if !r.connected {
		return agenterrs.NewTransportFailure("replayer not connected", nil)
	}

	owned := slices.Clone(line)
	r.writes = append(r.writes, owned)

	if f, err := wire.Decode(owned); err == nil {
		if req, ok := f.(wire.ControlRequest); ok {
			if n := len(r.idMap); n < len(r.oldIDs) {
				r.idMap[r.oldIDs[n]] = req.RequestID
				r.cond.Broadcast()
			}
		}
	}

	return nil
}

// ReadLines returns the replayed inbound stream. The lines channel closes
// when the transcript is exhausted.
func (r *Replayer) ReadLines(_ context.Context) (<-chan []byte, <-chan error) {
	return r.lines, r.errs
}

// Close stops the pump. It never fails.
func (r *Replayer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()

		return nil
	}
	r.closed = true
	close(r.done)
	r.cond.Broadcast()
	g := r.g
	r.mu.Unlock()

	if g != nil {
		_ = g.Wait()
	}

	return nil
}

// Ready reports whether the replayer is connected and not closed.
func (r *Replayer) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.connected && !r.closed
}

// Writes returns a copy of every line the live session wrote.
func (r *Replayer) Writes() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.writes))
	for i, w := range r.writes {
		out[i] = slices.Clone(w)
	}

	return out
}

func (r *Replayer) pump() error {
	defer close(r.lines)

	var prev time.Time
	for _, e := range r.entries {
		if e.Dir != DirIn {
			continue
		}
		if !prev.IsZero() && !r.pace(e.TS.Sub(prev)) {
			return nil
		}
		prev = e.TS

		select {
		case r.lines <- r.rewrite(e.Bytes()):
		case <-r.done:
			return nil
		}
	}

	return nil
}

// pace sleeps out the scaled recorded gap. It reports false when the
// replayer closed mid-wait.
func (r *Replayer) pace(gap time.Duration) bool {
	if r.speed <= 0 || gap <= 0 {
		return true
	}

	d := time.Duration(float64(gap) / r.speed)
	if d > r.maxGap {
		d = r.maxGap
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.done:
		return false
	}
}

// rewrite redirects a recorded control response at the live session's
// request ID. Every other line passes through untouched.
func (r *Replayer) rewrite(line []byte) []byte {
	f, err := wire.Decode(line)
	if err != nil {
		return line
	}
	resp, ok := f.(wire.ControlResponse)
	if !ok {
		return line
	}

	newID, ok := r.waitForMapping(resp.RequestID)
	if !ok {
		return line
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return line
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(obj["response"], &body); err != nil {
		return line
	}
	idJSON, err := json.Marshal(newID)
	if err != nil {
		return line
	}
	body["request_id"] = idJSON
	newBody, err := json.Marshal(body)
	if err != nil {
		return line
	}
	obj["response"] = newBody
	out, err := json.Marshal(obj)
	if err != nil {
		return line
	}

	return out
}

// waitForMapping blocks briefly until WriteLine pairs oldID with a live
// request ID. Transcripts place responses after their requests, so the wait
// only triggers when the live session runs behind the recording.
func (r *Replayer) waitForMapping(oldID string) (string, bool) {
	deadline := time.Now().Add(mappingWait)
	timer := time.AfterFunc(mappingWait, r.cond.Broadcast)
	defer timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if id, ok := r.idMap[oldID]; ok {
			return id, true
		}
		if r.closed || !r.expected[oldID] || time.Now().After(deadline) {
			return "", false
		}
		r.cond.Wait()
	}
}
