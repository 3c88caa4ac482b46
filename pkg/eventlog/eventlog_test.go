package eventlog

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	event := NewEvent(CategoryCommand, KindFluxLED, "desk strip", "192.168.1.40:5577")
	event.Command = &CommandEvent{
		Name: "set_rgb",
		Args: map[string]string{"r": "255", "g": "0", "b": "64"},
		OK:   true,
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.ID != event.ID {
		t.Errorf("ID: got %q, want %q", decoded.ID, event.ID)
	}
	if decoded.Category != CategoryCommand {
		t.Errorf("Category: got %v, want COMMAND", decoded.Category)
	}
	if decoded.Command == nil {
		t.Fatal("Command payload is nil")
	}
	if decoded.Command.Name != "set_rgb" {
		t.Errorf("Command.Name: got %q, want set_rgb", decoded.Command.Name)
	}
	if !decoded.Command.OK {
		t.Error("Command.OK: got false, want true")
	}
}

func TestFileLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event := NewEvent(CategoryState, KindMPD, "living room", "127.0.0.1:6600")
			event.StateChange = &StateChangeEvent{Attribute: "state", NewState: "playing"}
			logger.Log(event)
		}()
	}
	wg.Wait()

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Log after close is silently ignored.
	logger.Log(NewEvent(CategoryState, KindMPD, "living room", ""))

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != n {
		t.Errorf("read %d events, want %d", count, n)
	}
}

func TestReaderFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	cmd := NewEvent(CategoryCommand, KindMiio, "bedroom bulb", "192.168.1.50")
	cmd.Command = &CommandEvent{Name: "set_power", OK: true}
	logger.Log(cmd)

	state := NewEvent(CategoryState, KindMiio, "bedroom bulb", "192.168.1.50")
	state.StateChange = &StateChangeEvent{Attribute: "power", OldState: "off", NewState: "on"}
	logger.Log(state)

	presence := NewEvent(CategoryPresence, KindPresence, "", "")
	presence.Presence = &PresenceEvent{MAC: "AA:BB:CC:DD:EE:FF", Home: true}
	logger.Log(presence)

	logger.Close()

	wantCategory := CategoryState
	reader, err := NewFilteredReader(path, Filter{Category: &wantCategory})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.StateChange == nil || event.StateChange.NewState != "on" {
		t.Errorf("unexpected event: %+v", event)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderTimeFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	old := NewEvent(CategoryError, KindFluxLED, "desk strip", "")
	old.Timestamp = time.Now().Add(-time.Hour)
	old.Error = &ErrorEventData{Message: "connection refused", Context: "connect"}
	logger.Log(old)

	recent := NewEvent(CategoryError, KindFluxLED, "desk strip", "")
	recent.Error = &ErrorEventData{Message: "timeout", Context: "state query"}
	logger.Log(recent)

	logger.Close()

	start := time.Now().Add(-time.Minute)
	reader, err := NewFilteredReader(path, Filter{TimeStart: &start})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.Error == nil || event.Error.Message != "timeout" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b capturingLogger
	m := NewMultiLogger(&a, &b, NoopLogger{})

	m.Log(NewEvent(CategoryCommand, KindMPD, "living room", ""))

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out failed: a=%d b=%d", len(a.events), len(b.events))
	}
}

// capturingLogger records events for assertions.
type capturingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *capturingLogger) Log(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}
