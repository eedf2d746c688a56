// Package progress turns raw analyzer output into advisory progress
// events.
//
// The translator is lossy: progress exists to keep a human informed
// while a run is in flight, and losing or duplicating an event must
// never affect the run's outcome. Anything that would block or buffer
// unboundedly is dropped and counted instead.
package progress

import (
	"bytes"
	"strings"
)

// Kind identifies which marker class a line matched.
type Kind int

const (
	// KindStart marks analyzer startup. Message-only, no increment.
	KindStart Kind = iota

	// KindComplete marks the final phase of an analysis.
	KindComplete

	// KindUnits marks discovery of the work-unit count.
	KindUnits

	// KindUnit marks the processing of one unit.
	KindUnit
)

// String returns a short label for logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindComplete:
		return "complete"
	case KindUnits:
		return "units"
	case KindUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Event is one advisory progress update derived from a line of analyzer
// output.
type Event struct {
	// Message is the matched line, whitespace-trimmed.
	Message string

	// Increment is the progress advance in percentage points.
	// Zero for message-only events.
	Increment int

	// Marker is the marker class that produced the event.
	Marker Kind
}

// Marker maps a recognized substring to an event shape.
type Marker struct {
	Substr    string
	Kind      Kind
	Increment int
}

// DefaultMarkers is the marker table for the stock analyzer scripts.
// Order matters: the first match wins, so the terminal marker sits
// before the chattier per-unit ones.
var DefaultMarkers = []Marker{
	{Substr: "Starting analysis", Kind: KindStart, Increment: 0},
	{Substr: "Analysis complete", Kind: KindComplete, Increment: 25},
	{Substr: "Found", Kind: KindUnits, Increment: 10},
	{Substr: "Analyzing", Kind: KindUnit, Increment: 2},
}

// MaxPendingLine bounds the partial-line buffer. A pathological
// unterminated line (say, a large JSON body echoed to the wrong stream)
// is discarded rather than buffered.
const MaxPendingLine = 64 * 1024

// Translator splits incoming chunks into lines and matches each
// complete line against the marker table. A chunk may end mid-line; the
// partial tail is buffered and prefixed to the next chunk.
//
// Not safe for concurrent use. Each run owns its own Translator.
type Translator struct {
	markers []Marker
	pending []byte
	overrun bool

	linesSeen    int64
	linesMatched int64
	discarded    int64
}

// NewTranslator returns a Translator for the given marker table.
// A nil or empty table means DefaultMarkers.
func NewTranslator(markers []Marker) *Translator {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	return &Translator{markers: markers}
}

// Feed consumes one chunk and returns the events for every complete
// line it contained. The returned slice is nil when nothing matched.
func (t *Translator) Feed(chunk []byte) []Event {
	var events []Event
	rest := chunk
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			t.buffer(rest)
			return events
		}
		line := rest[:i]
		rest = rest[i+1:]

		if t.overrun {
			// The oversized line ends here; skip it and resume.
			t.overrun = false
			continue
		}
		if len(t.pending) > 0 {
			line = append(t.pending, line...)
			t.pending = nil
		}

		t.linesSeen++
		if ev, ok := t.match(line); ok {
			t.linesMatched++
			events = append(events, ev)
		}
	}
}

// Flush processes any trailing partial line. Call once at stream end so
// an unterminated final marker still counts.
func (t *Translator) Flush() []Event {
	if t.overrun {
		t.overrun = false
		return nil
	}
	if len(t.pending) == 0 {
		return nil
	}
	line := t.pending
	t.pending = nil

	t.linesSeen++
	if ev, ok := t.match(line); ok {
		t.linesMatched++
		return []Event{ev}
	}
	return nil
}

// Stats returns (lines seen, lines matched, overlong lines discarded).
func (t *Translator) Stats() (seen, matched, discarded int64) {
	return t.linesSeen, t.linesMatched, t.discarded
}

func (t *Translator) buffer(tail []byte) {
	if t.overrun || len(tail) == 0 {
		return
	}
	if len(t.pending)+len(tail) > MaxPendingLine {
		t.overrun = true
		t.pending = nil
		t.discarded++
		return
	}
	t.pending = append(t.pending, tail...)
}

func (t *Translator) match(line []byte) (Event, bool) {
	s := strings.TrimSuffix(string(line), "\r")
	for _, m := range t.markers {
		if strings.Contains(s, m.Substr) {
			return Event{
				Message:   strings.TrimSpace(s),
				Increment: m.Increment,
				Marker:    m.Kind,
			}, true
		}
	}
	return Event{}, false
}
