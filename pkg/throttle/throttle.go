package throttle

import (
	"errors"
	"sync"
	"time"
)

// Throttle errors.
var (
	ErrNilDefinition = errors.New("throttle definition must not be nil")
	ErrNilOperation  = errors.New("throttled operation must not be nil")
)

// Definition describes a throttling policy. It is immutable after
// construction and is meant to be shared: every owner that applies the same
// Definition gets its own independent timing state, keyed by the
// Definition's identity.
type Definition struct {
	minInterval time.Duration
	forcedLimit *Definition
}

// New creates a Definition with the given minimum interval between two
// effective invocations. Forced calls bypass the interval entirely.
func New(minInterval time.Duration) *Definition {
	return &Definition{minInterval: minInterval}
}

// NewWithForcedLimit creates a Definition that additionally rate-limits
// forced calls by forcedLimit. The secondary limit is tracked independently
// of the primary interval.
func NewWithForcedLimit(minInterval, forcedLimit time.Duration) *Definition {
	return &Definition{
		minInterval: minInterval,
		forcedLimit: New(forcedLimit),
	}
}

// MinInterval returns the minimum interval between effective invocations.
func (d *Definition) MinInterval() time.Duration {
	return d.minInterval
}

// ForcedLimit returns the secondary Definition applied to forced calls,
// or nil when forced calls are never throttled.
func (d *Definition) ForcedLimit() *Definition {
	return d.forcedLimit
}

// Registry holds the throttle state for one owner. Each owner embeds (or
// otherwise carries) its own Registry; entries are created lazily, one per
// Definition applied to that owner. The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	entries map[*Definition]*entry
}

// entryFor returns the entry for def, creating it on first access.
// Safe for concurrent use.
func (r *Registry) entryFor(def *Definition) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[*Definition]*entry)
	}
	e, ok := r.entries[def]
	if !ok {
		e = &entry{}
		r.entries[def] = e
	}
	return e
}

// entry is the per-(Definition, owner) throttle state: the critical-section
// lock and the timestamp of the last effective invocation.
type entry struct {
	// run guards the critical section. Acquired with TryLock only; a caller
	// that loses the race is rejected immediately, never queued.
	run sync.Mutex

	// mu guards lastSuccess for readers outside the critical section.
	mu          sync.RWMutex
	lastSuccess time.Time
}

// last returns the timestamp of the last effective invocation.
// Zero before the first one.
func (e *entry) last() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSuccess
}

// setLast records the timestamp of an effective invocation.
// Called only while holding the run lock.
func (e *entry) setLast(t time.Time) {
	e.mu.Lock()
	e.lastSuccess = t
	e.mu.Unlock()
}
