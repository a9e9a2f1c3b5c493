// Package agenttest provides test doubles for the session engine: a
// scriptable in-memory transport and builders for common wire frames.
// It is exported so black-box suites outside the module tree can drive
// a session without a real agent process.
package agenttest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
)

// FakeTransport is an in-memory ports.Transport. Tests feed inbound
// lines with Feed, inject a fatal error with Fail, and observe
// outbound lines through Writes or WaitWrites.
type FakeTransport struct {
	lines chan []byte
	errs  chan error

	mu        sync.Mutex
	cond      *sync.Cond
	connected bool
	closed    bool
	writes    [][]byte

	// ConnectErr, when set, fails Connect.
	ConnectErr error

	// WriteErr, when set, fails every subsequent WriteLine.
	WriteErr error
}

var _ ports.Transport = (*FakeTransport)(nil)

// NewFakeTransport returns a disconnected FakeTransport.
func NewFakeTransport() *FakeTransport {
	t := &FakeTransport{
		lines: make(chan []byte, 64),
		errs:  make(chan error, 1),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Connect marks the transport ready.
func (t *FakeTransport) Connect(_ context.Context) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// WriteLine captures one outbound line.
func (t *FakeTransport) WriteLine(_ context.Context, line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return agenterrs.NewTransportFailure("transport closed", nil)
	}
	if t.WriteErr != nil {
		return t.WriteErr
	}
	t.writes = append(t.writes, slices.Clone(line))
	t.cond.Broadcast()
	return nil
}

// ReadLines returns the scripted inbound stream.
func (t *FakeTransport) ReadLines(_ context.Context) (<-chan []byte, <-chan error) {
	return t.lines, t.errs
}

// Close marks the transport closed. Feed and Fail become no-ops.
func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.lines)
	t.cond.Broadcast()
	return nil
}

// Ready reports whether the transport is connected and not closed.
func (t *FakeTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

// Closed reports whether Close ran.
func (t *FakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Feed delivers one inbound line to the session. Lines fed after Close
// are dropped.
func (t *FakeTransport) Feed(line []byte) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.lines <- slices.Clone(line)
}

// FeedString delivers one inbound line given as a string.
func (t *FakeTransport) FeedString(line string) { t.Feed([]byte(line)) }

// Fail injects a fatal transport error, which the session treats as
// transport death.
func (t *FakeTransport) Fail(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	select {
	case t.errs <- err:
	default:
	}
}

// Writes returns a copy of every captured outbound line in write
// order.
func (t *FakeTransport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	for i, w := range t.writes {
		out[i] = slices.Clone(w)
	}
	return out
}

// WaitWrites blocks until at least n outbound lines have been captured
// or the timeout passes, then returns the captured lines.
func (t *FakeTransport) WaitWrites(n int, timeout time.Duration) [][]byte {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, t.cond.Broadcast)
	defer timer.Stop()

	t.mu.Lock()
	for len(t.writes) < n && !t.closed && time.Now().Before(deadline) {
		t.cond.Wait()
	}
	t.mu.Unlock()

	return t.Writes()
}
