// Package record captures session wire traffic as an NDJSON transcript and
// replays or summarizes it offline. Each transcript line is one entry with
// a timestamp, a direction, and the captured protocol line.
package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/conneroisu/agentwire/pkg/agentwire/options"
)

// Dir is the direction of a captured line from the engine's point of view.
type Dir string

const (
	// DirIn marks a line read from the agent.
	DirIn Dir = "in"
	// DirOut marks a line written to the agent.
	DirOut Dir = "out"
)

// maxEntryBytes bounds one transcript line.
const maxEntryBytes = 1 << 20

// Entry is one captured protocol line. Line holds it when it is valid
// JSON; Text holds the rare non-JSON line so the transcript itself stays
// valid NDJSON.
type Entry struct {
	TS   time.Time       `json:"ts"`
	Dir  Dir             `json:"dir"`
	Line json.RawMessage `json:"line,omitempty"`
	Text string          `json:"text,omitempty"`
}

// Bytes returns the captured line.
func (e Entry) Bytes() []byte {
	if len(e.Line) > 0 {
		return e.Line
	}

	return []byte(e.Text)
}

// Recorder appends transcript entries to a writer. It is safe for
// concurrent use; after the first write error it goes quiet and keeps the
// error for Err.
type Recorder struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
	err error
}

var _ options.WireRecorder = (*Recorder)(nil)

// NewRecorder writes NDJSON entries to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		enc: json.NewEncoder(w),
		now: time.Now,
	}
}

// RecordIn captures one line read from the agent.
func (r *Recorder) RecordIn(line []byte) { r.record(DirIn, line) }

// RecordOut captures one line written to the agent.
func (r *Recorder) RecordOut(line []byte) { r.record(DirOut, line) }

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

func (r *Recorder) record(dir Dir, line []byte) {
	entry := Entry{TS: r.now().UTC(), Dir: dir}
	if json.Valid(line) {
		entry.Line = line
	} else {
		entry.Text = string(line)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(entry); err != nil {
		r.err = err
	}
}

// ReadTranscript parses a full NDJSON transcript. Blank lines are skipped;
// a malformed entry fails the read with its line number.
func ReadTranscript(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEntryBytes)

	var entries []Entry
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", lineNo, err)
		}
		if e.Dir != DirIn && e.Dir != DirOut {
			return nil, fmt.Errorf("transcript line %d: unknown direction %q", lineNo, e.Dir)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return entries, nil
}
