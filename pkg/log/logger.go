package log

// Logger receives protocol log events. Pass nil or NoopLogger to disable
// logging.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use
	// and must not block for long.
	Log(event Event)
}

// NoopLogger discards all events. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger if l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}
