package eventlog

// MultiLogger fans an event out to several sinks, typically a
// SlogAdapter for the console plus a FileLogger for history.
type MultiLogger []Logger

// NewMultiLogger builds a MultiLogger over the given sinks.
func NewMultiLogger(sinks ...Logger) MultiLogger {
	return MultiLogger(sinks)
}

// Log delivers the event to every sink, in order.
func (m MultiLogger) Log(event Event) {
	for _, sink := range m {
		sink.Log(event)
	}
}

var _ Logger = MultiLogger(nil)
