package events

import "log/slog"

// Event represents a structured state change emitted by the settlement core.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (audit log, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default sink for components that expose optional event wiring.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans an event out to every configured sink.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(evt)
		}
	}
}

// EmitterFunc adapts a plain function into an Emitter.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// LogEmitter writes events to a structured logger at info level.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (e LogEmitter) Emit(evt Event) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := evt.Attributes()
	args := make([]any, 0, len(attrs)*2)
	for key, value := range attrs {
		args = append(args, key, value)
	}
	logger.Info(evt.EventType(), args...)
}
