package record

import (
	"time"

	"github.com/conneroisu/agentwire/pkg/agentwire/events"
	"github.com/conneroisu/agentwire/pkg/agentwire/wire"
)

// LatencyStats aggregates observed latencies for one callback subtype.
type LatencyStats struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Avg returns the mean latency.
func (s LatencyStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}

	return s.Total / time.Duration(s.Count)
}

// Summary describes one transcript at a glance.
type Summary struct {
	Entries      int
	InLines      int
	OutLines     int
	Frames       map[string]int // frame type, verbatim, to count
	Turns        int            // terminal message stops
	ToolUses     int
	DecodeErrors int

	// Callbacks maps inbound control request subtypes to the latency
	// between the request and the engine's recorded response.
	Callbacks map[string]LatencyStats

	Start time.Time
	End   time.Time
}

type pendingCallback struct {
	subtype string
	ts      time.Time
}

// Summarize aggregates a parsed transcript: line and frame counts, turn
// boundaries, and callback latencies.
func Summarize(entries []Entry) Summary {
	s := Summary{
		Frames:    make(map[string]int),
		Callbacks: make(map[string]LatencyStats),
	}

	acc := events.NewAccumulator()
	pending := make(map[string]pendingCallback)

	for _, e := range entries {
		s.Entries++
		if s.Start.IsZero() || e.TS.Before(s.Start) {
			s.Start = e.TS
		}
		if e.TS.After(s.End) {
			s.End = e.TS
		}

		switch e.Dir {
		case DirIn:
			s.InLines++
		case DirOut:
			s.OutLines++
		}

		f, err := wire.Decode(e.Bytes())
		if err != nil {
			s.DecodeErrors++
			continue
		}

		switch fr := f.(type) {
		case wire.ControlRequest:
			s.Frames[wire.TypeControlRequest]++
			if e.Dir == DirIn {
				pending[fr.RequestID] = pendingCallback{subtype: fr.Subtype, ts: e.TS}
			}
		case wire.ControlResponse:
			s.Frames[wire.TypeControlResponse]++
			if e.Dir == DirOut {
				s.recordLatency(pending, fr.RequestID, e.TS)
			}
		case wire.ControlCancel:
			s.Frames[wire.TypeControlCancel]++
		case wire.StreamEvent:
			s.Frames[wire.TypeStreamEvent]++
			if e.Dir == DirIn {
				s.applyStream(acc, fr.Raw)
			}
		case wire.PlainMessage:
			s.Frames[fr.Type]++
		}
	}

	return s
}

func (s *Summary) recordLatency(pending map[string]pendingCallback, requestID string, ts time.Time) {
	p, ok := pending[requestID]
	if !ok {
		return
	}
	delete(pending, requestID)

	d := ts.Sub(p.ts)
	if d < 0 {
		d = 0
	}

	stats := s.Callbacks[p.subtype]
	stats.Count++
	stats.Total += d
	if d > stats.Max {
		stats.Max = d
	}
	s.Callbacks[p.subtype] = stats
}

func (s *Summary) applyStream(acc *events.Accumulator, raw []byte) {
	evs, err := acc.Apply(raw)
	if err != nil {
		s.DecodeErrors++

		return
	}

	for _, ev := range evs {
		switch ev := ev.(type) {
		case events.MessageStop:
			if ev.Terminal() {
				s.Turns++
			}
		case events.ToolUseStart:
			s.ToolUses++
		}
	}
}
