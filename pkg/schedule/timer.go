package schedule

import (
	"errors"
	"sync"
	"time"
)

// Scheduling errors.
var (
	ErrTimerNotFound   = errors.New("timer not found")
	ErrInvalidDuration = errors.New("invalid duration")
)

// Duration limits.
const (
	// MinDelay is the minimum allowed delay (1 second).
	MinDelay = 1 * time.Second

	// MaxDelay is the maximum allowed delay (24 hours).
	MaxDelay = 24 * time.Hour
)

// Action identifies what happens when a timer fires.
type Action uint8

const (
	// ActionTurnOff switches the device off.
	ActionTurnOff Action = iota + 1

	// ActionTurnOn switches the device on.
	ActionTurnOn
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionTurnOff:
		return "TURN_OFF"
	case ActionTurnOn:
		return "TURN_ON"
	default:
		return "UNKNOWN"
	}
}

// timerKey uniquely identifies a timer.
type timerKey struct {
	device string
	action Action
}

// Timer represents a pending scheduled action.
type Timer struct {
	// Device is the configured device name.
	Device string

	// Action fires when the delay elapses.
	Action Action

	// StartTime is when the timer started.
	StartTime time.Time

	// Delay is how long after StartTime the action fires.
	Delay time.Duration

	// timer is the Go timer for automatic firing
	timer *time.Timer
}

// FiresAt returns when the action will fire.
func (t *Timer) FiresAt() time.Time {
	return t.StartTime.Add(t.Delay)
}

// Remaining returns time until the action fires.
func (t *Timer) Remaining() time.Duration {
	remaining := t.Delay - time.Since(t.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Manager manages pending scheduled actions.
type Manager struct {
	mu sync.RWMutex

	// Pending timers by (device, action)
	timers map[timerKey]*Timer

	// Callback when a timer fires
	onFire func(device string, action Action)
}

// NewManager creates a new schedule manager.
func NewManager() *Manager {
	return &Manager{
		timers: make(map[timerKey]*Timer),
	}
}

// Set schedules an action, replacing any pending timer for the same
// (device, action). The delay starts counting immediately.
func (m *Manager) Set(device string, action Action, delay time.Duration) error {
	if delay < MinDelay || delay > MaxDelay {
		return ErrInvalidDuration
	}

	key := timerKey{device: device, action: action}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.timers[key]; exists {
		if existing.timer != nil {
			existing.timer.Stop()
		}
	}

	timer := &Timer{
		Device:    device,
		Action:    action,
		StartTime: time.Now(),
		Delay:     delay,
	}
	timer.timer = time.AfterFunc(delay, func() {
		m.fire(key)
	})

	m.timers[key] = timer
	return nil
}

// Cancel removes a pending timer without firing its action.
func (m *Manager) Cancel(device string, action Action) error {
	key := timerKey{device: device, action: action}

	m.mu.Lock()
	defer m.mu.Unlock()

	timer, exists := m.timers[key]
	if !exists {
		return ErrTimerNotFound
	}

	if timer.timer != nil {
		timer.timer.Stop()
	}
	delete(m.timers, key)
	return nil
}

// CancelDevice removes all pending timers for a device.
func (m *Manager) CancelDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, timer := range m.timers {
		if key.device == device {
			if timer.timer != nil {
				timer.timer.Stop()
			}
			delete(m.timers, key)
		}
	}
}

// CancelAll removes every pending timer.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, timer := range m.timers {
		if timer.timer != nil {
			timer.timer.Stop()
		}
		delete(m.timers, key)
	}
}

// Get returns the pending timer for a (device, action), or nil.
func (m *Manager) Get(device string, action Action) *Timer {
	key := timerKey{device: device, action: action}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if timer, exists := m.timers[key]; exists {
		// Return a copy to avoid race conditions
		return &Timer{
			Device:    timer.Device,
			Action:    timer.Action,
			StartTime: timer.StartTime,
			Delay:     timer.Delay,
		}
	}
	return nil
}

// Timers returns all pending timers.
func (m *Manager) Timers() []*Timer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Timer
	for _, timer := range m.timers {
		result = append(result, &Timer{
			Device:    timer.Device,
			Action:    timer.Action,
			StartTime: timer.StartTime,
			Delay:     timer.Delay,
		})
	}
	return result
}

// Count returns the number of pending timers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.timers)
}

// OnFire sets the callback invoked when a timer fires.
func (m *Manager) OnFire(fn func(device string, action Action)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFire = fn
}

// fire handles a timer firing.
func (m *Manager) fire(key timerKey) {
	m.mu.Lock()

	_, exists := m.timers[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.timers, key)

	callback := m.onFire

	m.mu.Unlock()

	// Call callback outside lock
	if callback != nil {
		callback(key.device, key.action)
	}
}
