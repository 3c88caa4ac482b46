package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// fakeScanner serves queued scan results and records the exclude lists
// it was given.
type fakeScanner struct {
	mu       sync.Mutex
	results  [][]Device
	excludes [][]string
	err      error
}

func (f *fakeScanner) Scan(ctx context.Context, exclude []string) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.excludes = append(f.excludes, append([]string(nil), exclude...))
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result, nil
}

func (f *fakeScanner) scans() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.excludes)
}

// captureEvents collects logged events.
type captureEvents struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func (c *captureEvents) Log(event eventlog.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEvents) presence() []eventlog.PresenceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []eventlog.PresenceEvent
	for _, ev := range c.events {
		if ev.Presence != nil {
			out = append(out, *ev.Presence)
		}
	}
	return out
}

func phone(seen time.Time) Device {
	return Device{MAC: "AB:CD:EF:01:23:45", Name: "phone", IP: "192.168.0.17", LastSeen: seen}
}

func newTestTracker(t *testing.T, scanner Scanner, mutate ...func(*TrackerConfig)) (*Tracker, *captureEvents) {
	t.Helper()

	events := &captureEvents{}
	cfg := TrackerConfig{
		Scanner:  scanner,
		ScanRate: rate.NewLimiter(rate.Inf, 1),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Events:   events,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	tracker, err := NewTracker(cfg)
	require.NoError(t, err)
	return tracker, events
}

func TestNewTrackerRequiresScanner(t *testing.T) {
	_, err := NewTracker(TrackerConfig{})
	assert.Error(t, err)
}

func TestTrackerArrival(t *testing.T) {
	scanner := &fakeScanner{results: [][]Device{{phone(time.Now())}}}
	tracker, events := newTestTracker(t, scanner)

	require.NoError(t, tracker.Update(context.Background()))

	devices := tracker.Devices()
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Home)
	assert.True(t, tracker.Home("AB:CD:EF:01:23:45"))

	arrived := events.presence()
	require.Len(t, arrived, 1)
	assert.Equal(t, "AB:CD:EF:01:23:45", arrived[0].MAC)
	assert.True(t, arrived[0].Home)
}

func TestTrackerSweepsThrottled(t *testing.T) {
	scanner := &fakeScanner{}
	tracker, _ := newTestTracker(t, scanner)

	require.NoError(t, tracker.Update(context.Background()))
	require.NoError(t, tracker.Update(context.Background()))
	require.NoError(t, tracker.Update(context.Background()))
	assert.Equal(t, 1, scanner.scans())

	require.NoError(t, tracker.Update(context.Background(), throttle.Force()))
	assert.Equal(t, 2, scanner.scans())
}

func TestTrackerDeparture(t *testing.T) {
	scanner := &fakeScanner{results: [][]Device{{phone(time.Now())}, {}}}
	tracker, events := newTestTracker(t, scanner, func(cfg *TrackerConfig) {
		cfg.ConsiderHome = 50 * time.Millisecond
	})

	require.NoError(t, tracker.Update(context.Background()))
	require.NoError(t, tracker.Update(context.Background(), throttle.Force()))
	assert.True(t, tracker.Home("AB:CD:EF:01:23:45"), "still within consider-home window")

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, tracker.Update(context.Background(), throttle.Force()))
	assert.False(t, tracker.Home("AB:CD:EF:01:23:45"))

	transitions := events.presence()
	require.Len(t, transitions, 2)
	assert.True(t, transitions[0].Home)
	assert.False(t, transitions[1].Home)
}

func TestTrackerHomeIntervalExcludesFreshDevices(t *testing.T) {
	scanner := &fakeScanner{results: [][]Device{{phone(time.Now())}, {}}}
	tracker, _ := newTestTracker(t, scanner, func(cfg *TrackerConfig) {
		cfg.HomeInterval = time.Minute
		cfg.Exclude = []string{"192.168.0.1"}
	})

	require.NoError(t, tracker.Update(context.Background()))
	require.NoError(t, tracker.Update(context.Background(), throttle.Force()))

	scanner.mu.Lock()
	excludes := scanner.excludes
	scanner.mu.Unlock()
	require.Len(t, excludes, 2)
	assert.Equal(t, []string{"192.168.0.1"}, excludes[0])
	assert.ElementsMatch(t, []string{"192.168.0.1", "192.168.0.17"}, excludes[1])

	// Excluded from the probe, but still home.
	assert.True(t, tracker.Home("AB:CD:EF:01:23:45"))
}

func TestTrackerPersistsKnownDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_devices.yaml")
	scanner := &fakeScanner{results: [][]Device{{phone(time.Now())}}}
	tracker, _ := newTestTracker(t, scanner, func(cfg *TrackerConfig) {
		cfg.KnownDevicesPath = path
	})

	require.NoError(t, tracker.Update(context.Background()))

	known, err := LoadKnownDevices(path)
	require.NoError(t, err)
	require.Contains(t, known, "AB:CD:EF:01:23:45")
	assert.Equal(t, "phone", known["AB:CD:EF:01:23:45"].Name)
	assert.True(t, known["AB:CD:EF:01:23:45"].Track)
}

func TestTrackerUntrackedDeviceStaysQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_devices.yaml")
	require.NoError(t, SaveKnownDevices(path, map[string]KnownDevice{
		"AB:CD:EF:01:23:45": {MAC: "AB:CD:EF:01:23:45", Name: "phone", Track: false},
	}))

	scanner := &fakeScanner{results: [][]Device{{phone(time.Now())}}}
	tracker, events := newTestTracker(t, scanner, func(cfg *TrackerConfig) {
		cfg.KnownDevicesPath = path
	})

	require.NoError(t, tracker.Update(context.Background()))
	assert.True(t, tracker.Home("AB:CD:EF:01:23:45"))
	assert.Empty(t, events.presence())
}

func TestTrackerScanFailure(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("router unreachable")}
	tracker, _ := newTestTracker(t, scanner)

	assert.Error(t, tracker.Update(context.Background()))
	assert.Empty(t, tracker.Devices())
}
