package audit

import "time"

// Kinds used by the sampler.
const (
	KindRun   = "run"
	KindError = "error"
	KindDebug = "debug"
)

// Event is a structured audit or debug record.
type Event struct {
	Time    time.Time      `json:"time"`
	Kind    string         `json:"kind"`
	Scope   string         `json:"scope"`
	Message string         `json:"message"`
	OK      bool           `json:"ok"`
	Meta    map[string]any `json:"meta,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Sink accepts events. Implementations must not block the caller and swallow their own
// failures.
type Sink interface {
	Append(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Append(e Event) {
	f(e)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

// Multi fans events out to every sink.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Append(e Event) {
	for _, s := range m {
		s.Append(e)
	}
}
