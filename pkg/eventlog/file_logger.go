package eventlog

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends device events to a CBOR file. Safe for
// concurrent use.
type FileLogger struct {
	path    string
	file    *os.File
	encoder *cbor.Encoder
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewFileLogger opens (or creates) the event file at path in append
// mode.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		path:    path,
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Path returns the event file path.
func (l *FileLogger) Path() string {
	return l.path
}

// Log appends the event. Encoding and write failures are counted, not
// returned; event logging must never take a device operation down
// with it.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.dropped.Add(1)
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.dropped.Add(1)
	}
}

// Dropped reports how many events could not be written.
func (l *FileLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close closes the file. Events logged after Close count as dropped.
// Calling Close twice is fine.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
