package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a device event. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ID uniquely identifies the event (UUID).
	ID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// DeviceKind identifies the integration the event belongs to.
	DeviceKind DeviceKind `cbor:"4,keyasint,omitempty"`

	// DeviceName is the configured display name of the device.
	DeviceName string `cbor:"5,keyasint,omitempty"`

	// Address is the device network address (host or host:port).
	Address string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Command     *CommandEvent     `cbor:"7,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"`
	Presence    *PresenceEvent    `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"`
}

// NewEvent creates an Event with the timestamp and ID filled in.
func NewEvent(category Category, kind DeviceKind, name, address string) Event {
	return Event{
		Timestamp:  time.Now(),
		ID:         uuid.NewString(),
		Category:   category,
		DeviceKind: kind,
		DeviceName: name,
		Address:    address,
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryCommand indicates a control command sent to a device.
	CategoryCommand Category = 0
	// CategoryState indicates an observed device state change.
	CategoryState Category = 1
	// CategoryPresence indicates a presence transition for a tracked host.
	CategoryPresence Category = 2
	// CategoryError indicates an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryPresence:
		return "PRESENCE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DeviceKind identifies the integration an event belongs to.
type DeviceKind uint8

const (
	// KindUnknown is used when the integration is not known.
	KindUnknown DeviceKind = 0
	// KindFluxLED is a Flux/Magic Home LED strip.
	KindFluxLED DeviceKind = 1
	// KindMiio is a Xiaomi miio device.
	KindMiio DeviceKind = 2
	// KindMPD is a Music Player Daemon instance.
	KindMPD DeviceKind = 3
	// KindPresence is the presence tracker.
	KindPresence DeviceKind = 4
)

// String returns the device kind name.
func (k DeviceKind) String() string {
	switch k {
	case KindFluxLED:
		return "FLUXLED"
	case KindMiio:
		return "MIIO"
	case KindMPD:
		return "MPD"
	case KindPresence:
		return "PRESENCE"
	default:
		return "UNKNOWN"
	}
}

// CommandEvent captures a control command sent to a device.
type CommandEvent struct {
	// Name is the command name (e.g. "turn_on", "set_rgb", "setvol").
	Name string `cbor:"1,keyasint"`

	// Args holds printable command arguments.
	Args map[string]string `cbor:"2,keyasint,omitempty"`

	// Duration is how long the round-trip to the device took.
	Duration time.Duration `cbor:"3,keyasint,omitempty"`

	// OK reports whether the device accepted the command.
	OK bool `cbor:"4,keyasint"`
}

// StateChangeEvent captures an observed device state transition.
type StateChangeEvent struct {
	// Attribute is the state attribute that changed (e.g. "power", "volume").
	Attribute string `cbor:"1,keyasint"`

	// OldState is the previous value, empty on first observation.
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the observed value.
	NewState string `cbor:"3,keyasint"`
}

// PresenceEvent captures a tracked host coming home or leaving.
type PresenceEvent struct {
	// MAC is the hardware address of the tracked host.
	MAC string `cbor:"1,keyasint"`

	// Host is the resolved host name, if any.
	Host string `cbor:"2,keyasint,omitempty"`

	// IP is the last known address.
	IP string `cbor:"3,keyasint,omitempty"`

	// Home reports whether the host is now considered home.
	Home bool `cbor:"4,keyasint"`
}

// ErrorEventData captures error details.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what was being attempted.
	Context string `cbor:"2,keyasint,omitempty"`
}
