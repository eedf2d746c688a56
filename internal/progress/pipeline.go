package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink consumes progress events as they are translated.
type Sink interface {
	Publish(processID string, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(processID string, ev Event)

// Publish calls f.
func (f SinkFunc) Publish(processID string, ev Event) { f(processID, ev) }

// NopSink discards all events.
type NopSink struct{}

// Publish does nothing.
func (NopSink) Publish(string, Event) {}

// MultiSink fans each event out to every member sink, in order.
type MultiSink []Sink

// Publish forwards the event to every sink.
func (m MultiSink) Publish(processID string, ev Event) {
	for _, s := range m {
		s.Publish(processID, ev)
	}
}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	Log *slog.Logger
}

// Publish logs the event.
func (s LogSink) Publish(processID string, ev Event) {
	s.Log.Debug("progress_event",
		"process_id", processID,
		"marker", ev.Marker.String(),
		"increment", ev.Increment,
		"message", ev.Message,
	)
}

// Update pairs an event with the run that produced it.
type Update struct {
	ProcessID string
	Event     Event
}

// Pipeline decouples event production from consumption: reader
// goroutines publish without ever blocking, and a UI consumer drains at
// its own pace. A full channel drops the event and counts the drop,
// because a stalled consumer must never hold up stream reading.
type Pipeline struct {
	ch        chan Update
	closeOnce sync.Once

	published atomic.Int64
	dropped   atomic.Int64
}

// NewPipeline creates a pipeline with the given channel capacity.
func NewPipeline(buffer int) *Pipeline {
	if buffer < 1 {
		buffer = 256
	}
	return &Pipeline{ch: make(chan Update, buffer)}
}

// Publish implements Sink. Never blocks; drops when the consumer lags.
func (p *Pipeline) Publish(processID string, ev Event) {
	select {
	case p.ch <- Update{ProcessID: processID, Event: ev}:
		p.published.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// Updates returns the consumer side of the pipeline.
func (p *Pipeline) Updates() <-chan Update {
	return p.ch
}

// Close releases the consumer. Idempotent. Callers must stop publishing
// before closing; the pipeline belongs to whoever owns the runs.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.ch)
	})
}

// Stats returns (published, dropped) counts.
func (p *Pipeline) Stats() (published, dropped int64) {
	return p.published.Load(), p.dropped.Load()
}
