// Package control implements the two protocol components beneath the
// session: the request correlator, which matches outbound control
// requests to their responses by ID, and the callback dispatcher,
// which services inbound control requests from the agent.
package control

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Outcome is the terminal result of one pending control request:
// either the success payload or an error (remote failure, timeout, or
// transport death).
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// Correlator tracks pending outbound control requests by ID. Every
// registered request is completed exactly once: by Resolve, by Reject,
// by Drop (caller timeout), or by FailAll on transport death. Safe for
// concurrent use.
type Correlator struct {
	mu      sync.Mutex
	counter uint64
	pending map[string]chan Outcome
	failed  error
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan Outcome)}
}

// NextID returns a fresh request ID. IDs are unique per correlator and
// carry a monotonic counter plus a random suffix so they never collide
// with IDs the agent generates.
func (c *Correlator) NextID() string {
	c.mu.Lock()
	c.counter++
	counter := c.counter
	c.mu.Unlock()

	return fmt.Sprintf("req_%d_%s", counter, uuid.New().String()[:8])
}

// Register creates the pending entry for id and returns the channel
// its Outcome will arrive on. The channel is buffered; the completer
// never blocks. If FailAll already ran, the returned channel is
// pre-loaded with the failure so late callers cannot hang.
func (c *Correlator) Register(id string) <-chan Outcome {
	ch := make(chan Outcome, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failed != nil {
		ch <- Outcome{Err: c.failed}
		return ch
	}
	c.pending[id] = ch

	return ch
}

// Resolve completes the pending request id with a success payload.
// Unknown IDs (stale, duplicate, or already timed out) are dropped and
// reported as false; they are not an error.
func (c *Correlator) Resolve(id string, payload json.RawMessage) bool {
	return c.complete(id, Outcome{Payload: payload})
}

// Reject completes the pending request id with an error.
func (c *Correlator) Reject(id string, err error) bool {
	return c.complete(id, Outcome{Err: err})
}

func (c *Correlator) complete(id string, out Outcome) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	ch <- out

	return true
}

// Drop removes the pending entry for id without completing it. Called
// when the waiting side stops listening (timeout or cancellation) so a
// late response becomes a no-op.
func (c *Correlator) Drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// FailAll completes every outstanding request with err and marks the
// correlator failed so later Registers fail immediately. The first
// error wins; repeat calls are no-ops.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	if c.failed != nil {
		c.mu.Unlock()
		return
	}
	c.failed = err
	pending := c.pending
	c.pending = make(map[string]chan Outcome)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- Outcome{Err: err}
	}
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
