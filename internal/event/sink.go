package event

import (
	"log/slog"
	"sync"
)

// Sink receives lifecycle records. Post must be safe for concurrent use and
// must not block for long: it is called from the worker executing a unit.
type Sink interface {
	Post(e Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Event)

// Post calls f(e).
func (f SinkFunc) Post(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range filtered {
			s.Post(e)
		}
	})
}

// LogSink writes every event to a structured logger. Start and success
// records are logged at debug level, failures at warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Post implements Sink.
func (s *LogSink) Post(e Event) {
	attrs := []any{
		"event_id", e.ID.String(),
		"backend", e.Backend,
		"kind", e.Kind.String(),
		"phase", e.Phase.String(),
		"sql", e.SQL,
	}
	if e.Phase == PhaseFailure {
		if e.Err != nil {
			attrs = append(attrs, "error", e.Err)
		}
		s.logger.Warn("statement event", attrs...)
		return
	}
	s.logger.Debug("statement event", attrs...)
}

// Recorder keeps every posted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Post implements Sink.
func (r *Recorder) Post(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in posting order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByPhase returns the recorded events in the given phase.
func (r *Recorder) ByPhase(p Phase) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.Phase == p {
			out = append(out, e)
		}
	}
	return out
}

// ByBackend returns the recorded events for one backend.
func (r *Recorder) ByBackend(backend string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.Backend == backend {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
