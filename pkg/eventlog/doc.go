// Package eventlog provides structured device event logging.
//
// This package defines the Logger interface and Event types for capturing
// what happens on the home network: commands sent to devices, state changes
// observed on them, presence transitions, and errors. It is separate from
// operational logging (slog) - event capture provides a complete
// machine-readable trace for debugging and analysis after the fact.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	logger := eventlog.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	logger, _ := eventlog.NewFileLogger("/var/log/home/events.hlog")
//
//	// Both: use MultiLogger
//	logger := eventlog.NewMultiLogger(
//	    eventlog.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events carry one of several payloads:
//   - Command: a control command sent to a device (CommandEvent)
//   - State change: an observed device state transition (StateChangeEvent)
//   - Presence: a tracked host coming home or leaving (PresenceEvent)
//   - Errors at any point (ErrorEventData)
//
// # File Format
//
// Log files use CBOR encoding with .hlog extension. Use Reader with an
// optional Filter to scan them.
package eventlog
