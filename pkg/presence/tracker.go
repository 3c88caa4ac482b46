package presence

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// DefaultScanThrottle spaces sweeps of the network.
var DefaultScanThrottle = throttle.New(12 * time.Second)

// DefaultConsiderHome is how long a device stays home after its last
// sighting. Phones drop off the network while asleep.
const DefaultConsiderHome = 3 * time.Minute

// TrackedDevice is one device with its presence verdict.
type TrackedDevice struct {
	Device

	// Home reports whether the device counts as present.
	Home bool
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// Scanner probes the network.
	Scanner Scanner

	// ScanThrottle overrides DefaultScanThrottle.
	ScanThrottle *throttle.Definition

	// HomeInterval skips re-probing devices seen within it. Zero probes
	// every device on every sweep.
	HomeInterval time.Duration

	// ConsiderHome overrides DefaultConsiderHome.
	ConsiderHome time.Duration

	// Exclude lists IPs never probed.
	Exclude []string

	// KnownDevicesPath persists the device registry there. Empty
	// disables persistence.
	KnownDevicesPath string

	// ScanRate paces sweeps on top of the throttle, so a burst of
	// forced updates cannot flood the network. Defaults to one sweep
	// per second.
	ScanRate *rate.Limiter

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Events receives home/away events. Defaults to
	// eventlog.NoopLogger.
	Events eventlog.Logger
}

// Tracker drives a Scanner and keeps the home/away state per device.
type Tracker struct {
	scanner      Scanner
	homeInterval time.Duration
	considerHome time.Duration
	exclude      []string
	knownPath    string
	limiter      *rate.Limiter
	logger       *slog.Logger
	events       eventlog.Logger

	throttle throttle.Registry
	sweep    *throttle.Wrapped[int]

	mu      sync.Mutex
	devices map[string]TrackedDevice
	known   map[string]KnownDevice
}

// NewTracker creates a Tracker and loads the known-devices registry.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Scanner == nil {
		return nil, errors.New("presence: scanner must not be nil")
	}

	t := &Tracker{
		scanner:      cfg.Scanner,
		homeInterval: cfg.HomeInterval,
		considerHome: cfg.ConsiderHome,
		exclude:      cfg.Exclude,
		knownPath:    cfg.KnownDevicesPath,
		limiter:      cfg.ScanRate,
		logger:       cfg.Logger,
		events:       cfg.Events,
		devices:      map[string]TrackedDevice{},
		known:        map[string]KnownDevice{},
	}
	if t.considerHome <= 0 {
		t.considerHome = DefaultConsiderHome
	}
	if t.limiter == nil {
		t.limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.events == nil {
		t.events = eventlog.NoopLogger{}
	}

	if t.knownPath != "" {
		known, err := LoadKnownDevices(t.knownPath)
		if err != nil {
			return nil, err
		}
		t.known = known
	}

	def := cfg.ScanThrottle
	if def == nil {
		def = DefaultScanThrottle
	}
	sweep, err := throttle.Wrap(def, &t.throttle, t.runSweep)
	if err != nil {
		return nil, err
	}
	t.sweep = sweep

	return t, nil
}

// Update runs one sweep. Sweeps are throttled; pass throttle.Force() to
// bypass the interval.
func (t *Tracker) Update(ctx context.Context, opts ...throttle.CallOption) error {
	_, err := t.sweep.Call(ctx, opts...)
	return err
}

// Run sweeps periodically until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := t.Update(ctx); err != nil {
			t.logger.Warn("presence sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Devices returns the tracked devices, sorted by MAC.
func (t *Tracker) Devices() []TrackedDevice {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]TrackedDevice, 0, len(t.devices))
	for _, d := range t.devices {
		list = append(list, d)
	}
	slices.SortFunc(list, func(a, b TrackedDevice) int {
		return strings.Compare(a.MAC, b.MAC)
	})
	return list
}

// Home reports whether the device with the given MAC counts as present.
func (t *Tracker) Home(mac string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.devices[mac].Home
}

// runSweep is the real scan behind the throttle. It returns how many
// devices are home.
func (t *Tracker) runSweep(ctx context.Context) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	now := time.Now()
	exclude, fresh := t.excludeList(now)

	found, err := t.scanner.Scan(ctx, exclude)
	if err != nil {
		t.logger.Warn("scan failed", "err", err)
		return 0, err
	}

	return t.apply(found, fresh, now), nil
}

// excludeList builds the sweep's exclude set: the static excludes plus
// devices seen within the home interval. Skipping those spares phone
// batteries. It also returns the MACs skipped this way; they stay home
// without a fresh sighting.
func (t *Tracker) excludeList(now time.Time) ([]string, map[string]bool) {
	exclude := append([]string(nil), t.exclude...)
	fresh := map[string]bool{}
	if t.homeInterval <= 0 {
		return exclude, fresh
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	boundary := now.Add(-t.homeInterval)
	for mac, d := range t.devices {
		if d.Home && d.LastSeen.After(boundary) && d.IP != "" {
			exclude = append(exclude, d.IP)
			fresh[mac] = true
		}
	}
	return exclude, fresh
}

// apply merges one scan result into the device table and emits
// transition events. It returns how many devices are home.
func (t *Tracker) apply(found []Device, fresh map[string]bool, now time.Time) int {
	seen := map[string]Device{}
	for _, d := range found {
		seen[d.MAC] = d
	}

	t.mu.Lock()
	var transitions []TrackedDevice
	knownDirty := false

	for mac, d := range seen {
		prev, ok := t.devices[mac]
		next := TrackedDevice{Device: d, Home: true}
		if ok && !prev.Home {
			transitions = append(transitions, next)
		} else if !ok {
			transitions = append(transitions, next)
		}
		t.devices[mac] = next

		if _, ok := t.known[mac]; !ok {
			t.known[mac] = KnownDevice{MAC: mac, Name: d.Name, Track: true, FirstSeen: now}
			knownDirty = true
		}
	}

	boundary := now.Add(-t.considerHome)
	home := 0
	for mac, d := range t.devices {
		if _, ok := seen[mac]; ok {
			home++
			continue
		}
		if fresh[mac] {
			// Excluded from this sweep because it was seen recently.
			home++
			continue
		}
		if d.Home && d.LastSeen.Before(boundary) {
			d.Home = false
			t.devices[mac] = d
			transitions = append(transitions, d)
		}
		if d.Home {
			home++
		}
	}

	known := t.known
	t.mu.Unlock()

	for _, d := range transitions {
		if k, ok := known[d.MAC]; ok && !k.Track {
			continue
		}
		ev := eventlog.NewEvent(eventlog.CategoryPresence, eventlog.KindPresence, d.Name, d.IP)
		ev.Presence = &eventlog.PresenceEvent{
			MAC:  d.MAC,
			Host: d.Name,
			IP:   d.IP,
			Home: d.Home,
		}
		t.events.Log(ev)
		t.logger.Info("presence change", "mac", d.MAC, "name", d.Name, "home", d.Home)
	}

	if knownDirty && t.knownPath != "" {
		if err := SaveKnownDevices(t.knownPath, known); err != nil {
			t.logger.Warn("failed to persist known devices", "path", t.knownPath, "err", err)
		}
	}

	return home
}
