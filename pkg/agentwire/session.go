// Package agentwire drives a line-delimited JSON control protocol
// against a long-running agent process over one duplex transport.
//
// A Session multiplexes three kinds of traffic on the shared stream:
// user turns and the generation events they produce, out-of-band
// control commands correlated by request ID, and unsolicited callback
// requests from the agent (hooks, permission checks, tool calls, MCP
// messages) that the session answers from its registered handlers.
//
// All session state lives in a single actor goroutine. Callers reach
// it through an internal command channel; callback handlers run on
// their own goroutines and re-enter only to write their response, so a
// slow handler never stalls the reader.
package agentwire

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/adapters/mcpbridge"
	"github.com/conneroisu/agentwire/pkg/agentwire/control"
	"github.com/conneroisu/agentwire/pkg/agentwire/events"
	"github.com/conneroisu/agentwire/pkg/agentwire/metrics"
	"github.com/conneroisu/agentwire/pkg/agentwire/options"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
	"github.com/conneroisu/agentwire/pkg/agentwire/tools"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

// Session owns one transport and schedules turns, control requests,
// and callback responses over it. Create one with Connect; a Session
// is finished for good once Close runs or the transport fails.
type Session struct {
	opts       options.Options
	logger     *slog.Logger
	transport  ports.Transport
	correlator *control.Correlator
	dispatcher *control.Dispatcher
	router     ports.MCPRouter

	cmds        chan any
	closeSignal chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	cancelActor context.CancelFunc

	// decodeLog throttles warnings for undecodable lines so a
	// garbage-emitting peer cannot flood the log.
	decodeLog *rate.Limiter

	// actor-owned state; touched only by run and its callees.
	acc    *events.Accumulator
	active *Turn
	queue  []*Turn

	// inflight maps callback request IDs to the cancel funcs of their
	// dispatch goroutines, for control_cancel_request. Guarded by its
	// own mutex because dispatch goroutines remove their entry.
	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	infoMu    sync.Mutex
	sessionID string
	remote    *RemoteInfo
	closeErr  error
	closed    bool
}

// internal actor commands.
type submitCmd struct {
	turn  *Turn
	reply chan error
}

type writeCmd struct {
	line      []byte
	frameType string
	reply     chan error
}

type closeCmd struct {
	err error
}

// Connect validates the configuration, connects the MCP bridge and the
// transport, starts the session actor, and performs the initialize
// handshake. A handshake failure closes everything and fails Connect.
func Connect(ctx context.Context, transport ports.Transport, opts options.Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	if opts.EnableMetrics {
		metrics.Enable()
	}

	router, err := connectRouter(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := transport.Connect(ctx); err != nil {
		closeRouter(router)
		return nil, agenterrs.NewTransportError(agenterrs.ErrCodeConnectFailed, "transport connect failed", err)
	}

	actorCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:        opts,
		logger:      opts.Logger,
		transport:   transport,
		correlator:  control.NewCorrelator(),
		router:      router,
		cmds:        make(chan any),
		closeSignal: make(chan struct{}),
		done:        make(chan struct{}),
		cancelActor: cancel,
		decodeLog:   rate.NewLimiter(rate.Limit(1), 5),
		acc:         events.NewAccumulator(),
		inflight:    make(map[string]context.CancelFunc),
	}
	s.dispatcher = control.NewDispatcher(control.DispatcherConfig{
		Hooks:             opts.Hooks,
		PermissionHandler: opts.PermissionHandler,
		PermissionDefault: opts.DefaultPermissionDecision,
		Tools:             opts.Tools,
		MCP:               router,
		Logger:            opts.Logger,
	})

	lines, transportErrs := transport.ReadLines(actorCtx)
	go s.run(actorCtx, lines, transportErrs)

	info, err := s.initialize(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.infoMu.Lock()
	s.remote = info
	s.infoMu.Unlock()

	return s, nil
}

// connectRouter builds the MCP bridge over the configured servers plus
// the local tool registry's in-process server, when one is named.
func connectRouter(ctx context.Context, opts options.Options) (ports.MCPRouter, error) {
	configs := slices.Clone(opts.MCPServers)
	if opts.LocalServerName != "" {
		configs = append(configs, &options.InProcessMCPServer{
			ServerName: opts.LocalServerName,
			Server:     tools.Server(opts.LocalServerName, "1.0.0", opts.Tools),
		})
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return mcpbridge.Connect(ctx, opts.Logger, configs)
}

func closeRouter(router ports.MCPRouter) {
	if router != nil {
		_ = router.Close()
	}
}

// SubmitTurn queues one raw turn payload. When no turn is active the
// payload is written immediately; otherwise it waits in FIFO order.
// The returned Turn streams the events the prompt produces.
func (s *Session) SubmitTurn(ctx context.Context, payload json.RawMessage) (*Turn, error) {
	t := newTurn(payload)
	c := submitCmd{turn: t, reply: make(chan error, 1)}

	select {
	case s.cmds <- c:
	case <-s.done:
		return nil, s.closeError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-c.reply:
		if err != nil {
			return nil, err
		}
		return t, nil
	case <-s.done:
		return nil, s.closeError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitPrompt submits one user text prompt as a turn.
func (s *Session) SubmitPrompt(ctx context.Context, prompt string) (*Turn, error) {
	return s.SubmitTurn(ctx, UserMessage(s.SessionID(), prompt))
}

// SendControl issues one control request and blocks until the matching
// response arrives, timeout expires, or the session dies. A zero
// timeout uses the configured control timeout. The success payload is
// returned raw; a remote error outcome surfaces as a protocol error.
func (s *Session) SendControl(ctx context.Context, subtype string, payload map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.opts.ControlTimeout
	}

	id := s.correlator.NextID()
	line, err := wire.EncodeControlRequest(id, subtype, payload)
	if err != nil {
		return nil, agenterrs.NewConfigError("control request payload is not encodable: " + err.Error())
	}

	outcomes := s.correlator.Register(id)
	start := time.Now()
	if err := s.write(ctx, line, wire.TypeControlRequest); err != nil {
		s.correlator.Drop(id)
		metrics.RecordControlRequest(subtype, "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.SetPendingRequests(float64(s.correlator.Pending()))

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	defer func() { metrics.SetPendingRequests(float64(s.correlator.Pending())) }()

	select {
	case out := <-outcomes:
		if out.Err != nil {
			metrics.RecordControlRequest(subtype, "error", time.Since(start).Seconds())
			return nil, out.Err
		}
		metrics.RecordControlRequest(subtype, "success", time.Since(start).Seconds())
		return out.Payload, nil
	case <-timer.C:
		s.correlator.Drop(id)
		metrics.RecordControlRequest(subtype, "timeout", time.Since(start).Seconds())
		return nil, agenterrs.NewTimeoutError(id, subtype, timeout)
	case <-ctx.Done():
		s.correlator.Drop(id)
		metrics.RecordControlRequest(subtype, "canceled", time.Since(start).Seconds())
		return nil, ctx.Err()
	}
}

// Close shuts the session down: the reader stops, every pending
// control request and every queued or active turn fails immediately,
// and the transport and MCP bridge close. Close is idempotent and safe
// to call from any goroutine, including callback handlers.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closeSignal) })
	<-s.done
	return nil
}

// Done returns a channel closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the failure that ended the session, or a session-closed
// error after an explicit Close. Nil while the session runs.
func (s *Session) Err() error {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	if !s.closed {
		return nil
	}
	return s.closeErr
}

// SessionID returns the agent-assigned session identifier, or "" until
// the agent's init message arrives.
func (s *Session) SessionID() string {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.sessionID
}

// write serializes one outbound line through the session actor.
func (s *Session) write(ctx context.Context, line []byte, frameType string) error {
	c := writeCmd{line: line, frameType: frameType, reply: make(chan error, 1)}

	select {
	case s.cmds <- c:
	case <-s.done:
		return s.closeError()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		return s.closeError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// asyncWrite serializes a callback response line, tolerating session
// death: once the session is closing the response has nowhere to go.
func (s *Session) asyncWrite(line []byte, frameType string) {
	c := writeCmd{line: line, frameType: frameType, reply: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return
	}
	select {
	case err := <-c.reply:
		if err != nil {
			s.logger.Warn("failed to write callback response", "error", err)
		}
	case <-s.done:
	}
}

func (s *Session) closeError() error {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return agenterrs.NewSessionClosed()
}

// run is the session actor. It is the only goroutine that touches the
// queue, the active turn, and the accumulator, and the only writer on
// the transport.
func (s *Session) run(ctx context.Context, lines <-chan []byte, transportErrs <-chan error) {
	for {
		select {
		case cmd := <-s.cmds:
			if !s.handleCommand(ctx, cmd) {
				return
			}
		case line, ok := <-lines:
			if !ok {
				s.shutdown(agenterrs.NewTransportFailure("transport closed", nil))
				return
			}
			s.handleLine(ctx, line)
		case err := <-transportErrs:
			s.shutdown(agenterrs.NewTransportFailure("transport failed", err))
			return
		case <-s.closeSignal:
			s.shutdown(agenterrs.NewSessionClosed())
			return
		}
	}
}

// handleCommand services one actor command, reporting false when the
// actor must exit.
func (s *Session) handleCommand(ctx context.Context, cmd any) bool {
	switch c := cmd.(type) {
	case submitCmd:
		c.reply <- s.submit(ctx, c.turn)
	case writeCmd:
		c.reply <- s.doWrite(ctx, c.line, c.frameType)
	case closeCmd:
		s.shutdown(c.err)
		return false
	}
	return true
}

// submit activates the turn immediately when the session is idle, else
// appends it to the FIFO queue with its payload captured but unsent.
func (s *Session) submit(ctx context.Context, t *Turn) error {
	if s.active == nil {
		return s.activate(ctx, t)
	}
	s.queue = append(s.queue, t)
	metrics.SetQueueDepth(float64(len(s.queue)))
	s.logger.Debug("turn queued", "turn_id", t.ID(), "queue_depth", len(s.queue))
	return nil
}

// activate writes the turn's payload and makes it the active turn.
func (s *Session) activate(ctx context.Context, t *Turn) error {
	if err := s.doWrite(ctx, t.payload, "user"); err != nil {
		return err
	}
	t.markActivated(time.Now())
	s.active = t
	s.logger.Debug("turn active", "turn_id", t.ID())
	return nil
}

// doWrite puts one line on the wire. A transport write failure is
// fatal for the whole session; the cascade runs on the next actor
// iteration via a self-addressed close command.
func (s *Session) doWrite(ctx context.Context, line []byte, frameType string) error {
	if rec := s.opts.Recorder; rec != nil {
		rec.RecordOut(line)
	}
	if err := s.transport.WriteLine(ctx, line); err != nil {
		failure := agenterrs.NewTransportError(agenterrs.ErrCodeWriteFailed, "transport write failed", err)
		go s.failFromActor(failure)
		return failure
	}
	metrics.RecordFrame("out", frameType)
	return nil
}

// failFromActor injects a fatal error into the actor loop from one of
// its own callees.
func (s *Session) failFromActor(err error) {
	select {
	case s.cmds <- closeCmd{err: err}:
	case <-s.done:
	}
}

// handleLine decodes and routes one inbound line. A malformed line is
// reported and skipped; it never invalidates the session.
func (s *Session) handleLine(ctx context.Context, line []byte) {
	if rec := s.opts.Recorder; rec != nil {
		rec.RecordIn(line)
	}

	frame, err := wire.Decode(line)
	if err != nil {
		s.reportDecodeError(err)
		return
	}

	switch f := frame.(type) {
	case wire.ControlRequest:
		metrics.RecordFrame("in", wire.TypeControlRequest)
		s.serviceCallback(ctx, f)
	case wire.ControlResponse:
		metrics.RecordFrame("in", wire.TypeControlResponse)
		s.resolveResponse(f)
	case wire.ControlCancel:
		metrics.RecordFrame("in", wire.TypeControlCancel)
		s.cancelCallback(f.RequestID)
	case wire.StreamEvent:
		metrics.RecordFrame("in", wire.TypeStreamEvent)
		s.applyStream(f.Raw)
	case wire.PlainMessage:
		metrics.RecordFrame("in", f.Type)
		s.routePlain(f)
	}
}

func (s *Session) reportDecodeError(err error) {
	metrics.RecordDecodeError()
	if s.decodeLog.Allow() {
		s.logger.Warn("dropping undecodable line", "error", err)
	}
	if s.active != nil {
		s.deliver(s.active, events.ErrorEvent{
			Code:    string(agenterrs.ErrCodeDecodeFailed),
			Message: err.Error(),
		})
	}
}

// serviceCallback runs one inbound control request on its own
// goroutine so slow handlers never stall the reader; only the response
// write re-enters the actor.
func (s *Session) serviceCallback(ctx context.Context, req wire.ControlRequest) {
	cbCtx, cancel := context.WithCancel(ctx)
	s.inflightMu.Lock()
	s.inflight[req.RequestID] = cancel
	s.inflightMu.Unlock()

	go func() {
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, req.RequestID)
			s.inflightMu.Unlock()
			cancel()
		}()

		line := s.dispatcher.Dispatch(cbCtx, req)
		s.asyncWrite(line, wire.TypeControlResponse)
	}()
}

// cancelCallback aborts the dispatch goroutine for an in-flight
// callback; the dispatcher still answers with exactly one response
// (an error outcome carrying the cancellation).
func (s *Session) cancelCallback(requestID string) {
	s.inflightMu.Lock()
	cancel, ok := s.inflight[requestID]
	s.inflightMu.Unlock()
	if ok {
		cancel()
	} else {
		s.logger.Debug("cancel for unknown control request", "request_id", requestID)
	}
}

// resolveResponse completes the pending control request the response
// answers. Unknown IDs are stale or already timed out; they drop.
func (s *Session) resolveResponse(resp wire.ControlResponse) {
	var matched bool
	if resp.Succeeded() {
		matched = s.correlator.Resolve(resp.RequestID, resp.Result)
	} else {
		matched = s.correlator.Reject(resp.RequestID, agenterrs.NewProtocolError(resp.RequestID, resp.Error))
	}
	if !matched {
		s.logger.Debug("control response for unknown request", "request_id", resp.RequestID)
	}
	metrics.SetPendingRequests(float64(s.correlator.Pending()))
}

// applyStream normalizes one stream event and routes the semantic
// events to the active turn. A message_stop whose stop reason is not
// "tool_use" terminates the turn and activates the next queued one.
func (s *Session) applyStream(raw json.RawMessage) {
	evs, err := s.acc.Apply(raw)
	if err != nil {
		s.reportDecodeError(err)
		return
	}

	for _, ev := range evs {
		if s.active == nil {
			metrics.RecordDroppedEvent()
			s.logger.Debug("stream event with no active turn dropped")
			continue
		}
		s.deliver(s.active, ev)
		if stop, ok := ev.(events.MessageStop); ok && stop.Terminal() {
			s.finishActive(nil, "completed")
		}
	}
}

// routePlain routes a non-event wire object. The init system message
// updates session info; everything else goes to the active turn, and a
// result message additionally terminates it.
func (s *Session) routePlain(msg wire.PlainMessage) {
	if msg.Type == "system" {
		s.applySystem(msg.Raw)
	}

	if s.active == nil {
		if msg.Type != "system" {
			metrics.RecordDroppedEvent()
			s.logger.Debug("plain message with no active turn dropped", "message_type", msg.Type)
		}
		return
	}

	s.deliver(s.active, events.PlainMessage{Type: msg.Type, Raw: msg.Raw})
	if msg.Type == "result" {
		s.finishActive(nil, "completed")
	}
}

func (s *Session) applySystem(raw json.RawMessage) {
	var sys struct {
		Subtype   string `json:"subtype"`
		SessionID string `json:"session_id"`
		Model     string `json:"model"`
	}
	if err := json.Unmarshal(raw, &sys); err != nil {
		return
	}
	if sys.Subtype == "init" && sys.SessionID != "" {
		s.infoMu.Lock()
		s.sessionID = sys.SessionID
		s.infoMu.Unlock()
		s.logger.Debug("session initialized", "session_id", sys.SessionID, "model", sys.Model)
	}
}

// deliver sends one event to a turn's sink. The send blocks once the
// turn's buffer fills, so a consumer that stops draining holds up the
// session until it resumes or the session closes.
func (s *Session) deliver(t *Turn, ev events.Event) {
	select {
	case t.events <- ev:
	case <-s.closeSignal:
	}
}

// finishActive closes the active turn's sink and activates the next
// queued turn, writing its payload.
func (s *Session) finishActive(err error, outcome string) {
	t := s.active
	s.active = nil
	if duration, first := t.finish(err); first {
		metrics.RecordTurn(outcome, duration.Seconds())
		s.logger.Debug("turn finished", "turn_id", t.ID(), "outcome", outcome)
	}

	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		metrics.SetQueueDepth(float64(len(s.queue)))
		if aerr := s.activate(context.Background(), next); aerr != nil {
			if _, first := next.finish(aerr); first {
				metrics.RecordTurn("failed", 0)
			}
			continue
		}
		return
	}
}

// shutdown runs the close cascade exactly once: pending requests fail,
// every queued and active turn's sink closes with the failure, and the
// transport and MCP bridge close. After shutdown the done channel is
// closed and every suspended caller observes the error.
func (s *Session) shutdown(cause error) {
	s.infoMu.Lock()
	if s.closed {
		s.infoMu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	s.infoMu.Unlock()

	s.logger.Debug("session shutting down", "cause", cause)

	s.correlator.FailAll(cause)
	metrics.SetPendingRequests(0)

	if s.active != nil {
		if _, first := s.active.finish(cause); first {
			metrics.RecordTurn("failed", 0)
		}
		s.active = nil
	}
	for _, t := range s.queue {
		if _, first := t.finish(cause); first {
			metrics.RecordTurn("failed", 0)
		}
	}
	s.queue = nil
	metrics.SetQueueDepth(0)

	s.cancelActor()
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("transport close failed", "error", err)
	}
	closeRouter(s.router)
	s.closeOnce.Do(func() { close(s.closeSignal) })
	close(s.done)
}
