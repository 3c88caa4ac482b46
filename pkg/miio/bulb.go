package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// Philips bulb constants.
const (
	// CCTMin and CCTMax bound the bulb's color temperature percentage.
	// The firmware rejects values below 1.
	CCTMin = 1
	CCTMax = 100

	// MinMireds and MaxMireds bound the color temperature in mireds.
	MinMireds = 175
	MaxMireds = 333

	// DelayedTurnOffMaxDeviation is how far a reported turn-off countdown
	// may drift from the recorded one before the timestamp is replaced.
	DelayedTurnOffMaxDeviation = 4 * time.Second
)

// DefaultUpdateThrottle spaces state polls for miio devices.
var DefaultUpdateThrottle = throttle.New(30 * time.Second)

// ErrCommandRejected is returned when the device answers something other
// than "ok".
var ErrCommandRejected = errors.New("miio: command rejected by device")

// Caller issues JSON-RPC calls to a device. *Client implements it.
type Caller interface {
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Status is the bulb state from the last update.
type Status struct {
	// Power reports whether the bulb is on.
	Power bool

	// Brightness is 0-255.
	Brightness byte

	// ColorTemp is the color temperature in mireds.
	ColorTemp int

	// Scene is the active fixed scene number, zero for none.
	Scene int

	// DelayOffCountdown is the remaining delayed-turn-off time in
	// seconds, zero when no turn-off is scheduled.
	DelayOffCountdown int
}

// BulbConfig configures a PhilipsBulb.
type BulbConfig struct {
	// Name is the display name.
	Name string

	// Model is the miio model string (e.g. "philips.light.bulb").
	Model string

	// Addr is the device address recorded in events. Informational; the
	// transport carries its own address.
	Addr string

	// UpdateThrottle overrides DefaultUpdateThrottle.
	UpdateThrottle *throttle.Definition

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Events receives device events. Defaults to eventlog.NoopLogger.
	Events eventlog.Logger
}

// PhilipsBulb is a Xiaomi Philips smart bulb.
type PhilipsBulb struct {
	name   string
	model  string
	addr   string
	client Caller
	logger *slog.Logger
	events eventlog.Logger

	throttle throttle.Registry
	update   *throttle.Wrapped[Status]

	mu             sync.Mutex
	status         Status
	available      bool
	delayedTurnOff *time.Time
}

// NewPhilipsBulb creates a PhilipsBulb on top of the given transport.
func NewPhilipsBulb(client Caller, cfg BulbConfig) (*PhilipsBulb, error) {
	if client == nil {
		return nil, errors.New("miio: client must not be nil")
	}
	if cfg.Name == "" {
		return nil, errors.New("miio: bulb name must not be empty")
	}

	b := &PhilipsBulb{
		name:   cfg.Name,
		model:  cfg.Model,
		addr:   cfg.Addr,
		client: client,
		logger: cfg.Logger,
		events: cfg.Events,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.events == nil {
		b.events = eventlog.NoopLogger{}
	}

	def := cfg.UpdateThrottle
	if def == nil {
		def = DefaultUpdateThrottle
	}
	update, err := throttle.Wrap(def, &b.throttle, b.refresh)
	if err != nil {
		return nil, err
	}
	b.update = update

	return b, nil
}

// Name returns the display name.
func (b *PhilipsBulb) Name() string {
	return b.name
}

// Model returns the miio model string.
func (b *PhilipsBulb) Model() string {
	return b.model
}

// Available reports whether the last command or update reached the bulb.
func (b *PhilipsBulb) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// Status returns the state recorded by the last update.
func (b *PhilipsBulb) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// DelayedTurnOff returns when the bulb will turn itself off, nil when no
// turn-off is scheduled.
func (b *PhilipsBulb) DelayedTurnOff() *time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delayedTurnOff
}

// LastUpdate returns the time of the last effective state poll.
func (b *PhilipsBulb) LastUpdate() time.Time {
	return b.update.LastCall()
}

// Update polls the bulb for fresh state. Calls are throttled; pass
// throttle.Force() to bypass the interval.
func (b *PhilipsBulb) Update(ctx context.Context, opts ...throttle.CallOption) error {
	_, err := b.update.Call(ctx, opts...)
	return err
}

// refresh is the real update operation behind the throttle.
func (b *PhilipsBulb) refresh(ctx context.Context) (Status, error) {
	props := []string{"power", "bright", "cct", "snm", "dv"}
	raw, err := b.client.Send(ctx, "get_prop", props)
	if err != nil {
		b.setAvailable(false)
		b.logger.Warn("failed to fetch bulb state", "bulb", b.name, "err", err)
		return Status{}, err
	}

	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return Status{}, fmt.Errorf("miio: decode get_prop: %w", err)
	}
	if len(values) != len(props) {
		return Status{}, fmt.Errorf("miio: get_prop returned %d values, want %d", len(values), len(props))
	}

	status := Status{
		Power:             asString(values[0]) == "on",
		Brightness:        percentToByte(asInt(values[1])),
		ColorTemp:         translate(asInt(values[2]), CCTMin, CCTMax, MaxMireds, MinMireds),
		Scene:             asInt(values[3]),
		DelayOffCountdown: asInt(values[4]),
	}

	b.mu.Lock()
	old := b.status
	b.status = status
	b.available = true
	b.delayedTurnOff = delayedTurnOffTimestamp(status.DelayOffCountdown, time.Now(), b.delayedTurnOff)
	b.mu.Unlock()

	if old.Power != status.Power {
		ev := eventlog.NewEvent(eventlog.CategoryState, eventlog.KindMiio, b.name, b.addr)
		ev.StateChange = &eventlog.StateChangeEvent{
			Attribute: "power",
			OldState:  onOff(old.Power),
			NewState:  onOff(status.Power),
		}
		b.events.Log(ev)
	}

	b.logger.Debug("bulb state", "bulb", b.name, "power", status.Power,
		"brightness", status.Brightness, "color_temp", status.ColorTemp)
	return status, nil
}

// SetPower turns the bulb on or off.
func (b *PhilipsBulb) SetPower(ctx context.Context, on bool) error {
	arg := "off"
	if on {
		arg = "on"
	}
	err := b.command(ctx, "set_power", []string{arg}, map[string]string{"power": arg})
	if err == nil {
		b.mu.Lock()
		b.status.Power = on
		b.mu.Unlock()
	}
	return err
}

// SetBrightness sets the brightness from a 0-255 value.
func (b *PhilipsBulb) SetBrightness(ctx context.Context, brightness byte) error {
	percent := byteToPercent(brightness)
	err := b.command(ctx, "set_bright", []int{percent},
		map[string]string{"brightness": fmt.Sprint(percent)})
	if err == nil {
		b.mu.Lock()
		b.status.Brightness = brightness
		b.mu.Unlock()
	}
	return err
}

// SetColorTemperature sets the color temperature in mireds.
func (b *PhilipsBulb) SetColorTemperature(ctx context.Context, mireds int) error {
	percent := translate(mireds, MaxMireds, MinMireds, CCTMin, CCTMax)
	err := b.command(ctx, "set_cct", []int{percent},
		map[string]string{"cct": fmt.Sprint(percent)})
	if err == nil {
		b.mu.Lock()
		b.status.ColorTemp = mireds
		b.mu.Unlock()
	}
	return err
}

// SetBrightnessAndColorTemperature sets both in one firmware call, which
// avoids the visible two-step transition of separate writes.
func (b *PhilipsBulb) SetBrightnessAndColorTemperature(ctx context.Context, brightness byte, mireds int) error {
	bright := byteToPercent(brightness)
	cct := translate(mireds, MaxMireds, MinMireds, CCTMin, CCTMax)
	err := b.command(ctx, "set_bricct", []int{bright, cct},
		map[string]string{"brightness": fmt.Sprint(bright), "cct": fmt.Sprint(cct)})
	if err == nil {
		b.mu.Lock()
		b.status.Brightness = brightness
		b.status.ColorTemp = mireds
		b.mu.Unlock()
	}
	return err
}

// SetDelayedTurnOff schedules the bulb to turn off after the given delay.
func (b *PhilipsBulb) SetDelayedTurnOff(ctx context.Context, delay time.Duration) error {
	secs := int(delay / time.Second)
	return b.command(ctx, "delay_off", []int{secs},
		map[string]string{"delay": fmt.Sprint(secs)})
}

// command issues a control call and checks for the "ok" acknowledgement.
func (b *PhilipsBulb) command(ctx context.Context, method string, params any, args map[string]string) error {
	start := time.Now()
	raw, err := b.client.Send(ctx, method, params)
	if err == nil && !resultOK(raw) {
		err = fmt.Errorf("%w: %s %s", ErrCommandRejected, method, raw)
	}

	ev := eventlog.NewEvent(eventlog.CategoryCommand, eventlog.KindMiio, b.name, b.addr)
	ev.Command = &eventlog.CommandEvent{
		Name:     method,
		Args:     args,
		Duration: time.Since(start),
		OK:       err == nil,
	}
	b.events.Log(ev)

	if err != nil {
		b.setAvailable(false)
		b.logger.Warn("bulb command failed", "bulb", b.name, "command", method, "err", err)
		return err
	}
	b.setAvailable(true)
	return nil
}

func (b *PhilipsBulb) setAvailable(v bool) {
	b.mu.Lock()
	b.available = v
	b.mu.Unlock()
}

// resultOK reports whether the device acknowledged with ["ok"].
func resultOK(raw json.RawMessage) bool {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return false
	}
	return len(values) > 0 && asString(values[0]) == "ok"
}

// delayedTurnOffTimestamp derives the turn-off time from the reported
// countdown, keeping the previous timestamp when the drift stays within
// DelayedTurnOffMaxDeviation. Device clocks tick coarsely, so the naive
// recomputation would jitter on every poll.
func delayedTurnOffTimestamp(countdown int, now time.Time, previous *time.Time) *time.Time {
	if countdown <= 0 {
		return nil
	}

	next := now.Truncate(time.Second).Add(time.Duration(countdown) * time.Second)
	if previous == nil {
		return &next
	}

	diff := previous.Sub(next)
	if diff > -DelayedTurnOffMaxDeviation && diff < DelayedTurnOffMaxDeviation {
		return previous
	}
	return &next
}

// translate maps value from the left span onto the right span.
func translate(value, leftMin, leftMax, rightMin, rightMax int) int {
	leftSpan := leftMax - leftMin
	rightSpan := rightMax - rightMin
	scaled := float64(value-leftMin) / float64(leftSpan)
	return rightMin + int(scaled*float64(rightSpan))
}

// byteToPercent converts a 0-255 brightness to the 1-100 firmware scale.
func byteToPercent(b byte) int {
	return int(math.Ceil(100 * float64(b) / 255))
}

// percentToByte converts the firmware 1-100 scale back to 0-255.
func percentToByte(p int) byte {
	v := math.Ceil(255 * float64(p) / 100)
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// asString extracts a JSON string value, tolerating other scalar types.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt extracts a JSON number value. miio firmwares sometimes return
// numbers as strings.
func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		var out int
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
