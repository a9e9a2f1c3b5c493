// Package stdio runs the agent as a subprocess and adapts its stdin
// and stdout pipes to the engine's line transport. Stderr forwards to
// the logger; process exit surfaces as the fatal transport error that
// triggers the session close cascade.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
)

const (
	// scannerInitial is the scanner's starting buffer size.
	scannerInitial = 64 * 1024

	// scannerMax bounds one inbound line. Agent lines carry whole
	// messages, so they run long.
	scannerMax = 1024 * 1024

	// killGrace is how long Close waits after the interrupt signal
	// before killing the process.
	killGrace = 5 * time.Second
)

// Config describes the agent subprocess.
type Config struct {
	// Command is the agent binary. Args and Env are passed through;
	// Env nil inherits the parent environment.
	Command string
	Args    []string
	Env     []string
	Dir     string

	// Logger receives stderr lines and lifecycle messages. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Transport runs one agent subprocess.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	closed  bool

	lines    chan []byte
	errs     chan error
	closeCh  chan struct{}
	procDone chan struct{}
}

var _ ports.Transport = (*Transport)(nil)

// New returns an unstarted subprocess transport.
func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:      cfg,
		logger:   logger,
		lines:    make(chan []byte, 64),
		errs:     make(chan error, 1),
		closeCh:  make(chan struct{}),
		procDone: make(chan struct{}),
	}
}

// Connect starts the subprocess, wires its pipes, and begins the
// stdout read loop.
func (t *Transport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return agenterrs.NewSessionClosed()
	}
	if t.cmd != nil {
		return nil
	}
	if t.cfg.Command == "" {
		return agenterrs.NewConfigError("stdio transport needs a command")
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	if t.cfg.Env != nil {
		cmd.Env = t.cfg.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeConnectFailed, "stdin pipe failed", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeConnectFailed, "stdout pipe failed", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeConnectFailed, "stderr pipe failed", err)
	}

	if err := cmd.Start(); err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeConnectFailed,
			fmt.Sprintf("failed to start %s", t.cfg.Command), err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.started = time.Now()
	t.logger.Debug("agent process started", "command", t.cfg.Command, "pid", cmd.Process.Pid)

	go t.stderrLoop(stderr)
	go t.readLoop(cmd, stdout)
	return nil
}

// WriteLine writes one JSON object followed by a newline to the agent's
// stdin.
func (t *Transport) WriteLine(_ context.Context, line []byte) error {
	t.mu.Lock()
	stdin := t.stdin
	closed := t.closed
	t.mu.Unlock()

	if closed || stdin == nil {
		return agenterrs.NewTransportFailure("process not running", nil)
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := stdin.Write(buf); err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeWriteFailed, "stdin write failed", err)
	}
	return nil
}

// ReadLines returns the inbound channels. The lines channel closes at
// stdout EOF; an unexpected exit is delivered on the error channel.
func (t *Transport) ReadLines(_ context.Context) (<-chan []byte, <-chan error) {
	return t.lines, t.errs
}

// readLoop scans stdout and is the process's single reaper: it calls
// Wait after EOF and reports the exit, then releases Close waiters.
func (t *Transport) readLoop(cmd *exec.Cmd, stdout io.Reader) {
	defer close(t.procDone)
	defer close(t.lines)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, scannerInitial), scannerMax)
scan:
	for sc.Scan() {
		// The scanner reuses its buffer between lines; the session
		// retains references into the line it receives.
		select {
		case t.lines <- slices.Clone(sc.Bytes()):
		case <-t.closeCh:
			// Nobody is draining anymore. Skip straight to reaping
			// so Close does not wait on a blocked send.
			break scan
		}
	}
	scanErr := sc.Err()

	waitErr := cmd.Wait()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	switch {
	case scanErr != nil:
		t.errs <- agenterrs.NewTransportError(agenterrs.ErrCodeReadFailed, "stdout read failed", scanErr)
	case waitErr != nil:
		t.errs <- agenterrs.NewTransportFailure("agent process exited", waitErr)
	}
}

func (t *Transport) stderrLoop(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, scannerInitial), scannerMax)
	for sc.Scan() {
		t.logger.Debug("agent stderr", "line", sc.Text())
	}
}

// Close stops the subprocess: stdin closes so the agent can exit on
// its own, then an interrupt, then a kill after the grace period.
// Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stdin := t.stdin
	cmd := t.cmd
	t.mu.Unlock()
	close(t.closeCh)

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)

	select {
	case <-t.procDone:
	case <-time.After(killGrace):
		t.logger.Warn("agent process ignored interrupt, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-t.procDone
	}
	return nil
}

// Ready reports whether the subprocess is running.
func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cmd != nil && !t.closed
}

// Stats is a point-in-time health snapshot of the agent process.
type Stats struct {
	PID        int
	Uptime     time.Duration
	CPUPercent float64
	RSSBytes   uint64
}

// Stats samples the agent process. It fails when the process is not
// running or the platform refuses the probe.
func (t *Transport) Stats() (Stats, error) {
	t.mu.Lock()
	cmd := t.cmd
	started := t.started
	closed := t.closed
	t.mu.Unlock()

	if cmd == nil || cmd.Process == nil || closed {
		return Stats{}, agenterrs.NewTransportFailure("process not running", nil)
	}

	s := Stats{
		PID:    cmd.Process.Pid,
		Uptime: time.Since(started),
	}

	proc, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		return s, fmt.Errorf("probe process %d: %w", cmd.Process.Pid, err)
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		s.RSSBytes = mem.RSS
	}
	return s, nil
}
