package fluxled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// Mode selects how the strip is driven.
type Mode string

const (
	// ModeRGB drives the color channels only.
	ModeRGB Mode = "rgb"

	// ModeRGBW drives color plus a separate white channel.
	ModeRGBW Mode = "rgbw"

	// ModeWhite drives only the white channel; brightness maps to the
	// white level and color writes are ignored.
	ModeWhite Mode = "w"
)

// DefaultUpdateThrottle spaces state polls. All lights that do not
// configure their own definition share this one, each with independent
// timing state.
var DefaultUpdateThrottle = throttle.New(10 * time.Second)

// CustomEffect is a user-configured color pattern for EffectCustom.
type CustomEffect struct {
	Colors     []Color
	SpeedPct   int
	Transition byte
}

// LightConfig configures a Light.
type LightConfig struct {
	// Name is the display name.
	Name string

	// Bulb settings.
	Bulb Config

	// Mode overrides automatic RGB/RGBW detection. Empty means detect
	// from the first state reply.
	Mode Mode

	// CustomEffect enables EffectCustom.
	CustomEffect *CustomEffect

	// UpdateThrottle overrides DefaultUpdateThrottle.
	UpdateThrottle *throttle.Definition

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Events receives device events. Defaults to eventlog.NoopLogger.
	Events eventlog.Logger
}

// Light wraps a Bulb with the state tracking a long-running application
// needs: lazy connect, warn-once failure reporting, cached state, and a
// throttled Update.
type Light struct {
	name         string
	bulb         *Bulb
	customEffect *CustomEffect
	logger       *slog.Logger
	events       eventlog.Logger

	throttle throttle.Registry
	update   *throttle.Wrapped[State]

	mu            sync.Mutex
	state         State
	available     bool
	mode          Mode
	errorReported bool
}

// NewLight creates a Light. It does not touch the network; the first
// Update connects.
func NewLight(cfg LightConfig) (*Light, error) {
	if cfg.Name == "" {
		return nil, errors.New("fluxled: light name must not be empty")
	}
	bulb, err := NewBulb(cfg.Bulb)
	if err != nil {
		return nil, err
	}

	l := &Light{
		name:         cfg.Name,
		bulb:         bulb,
		customEffect: cfg.CustomEffect,
		logger:       cfg.Logger,
		events:       cfg.Events,
		mode:         cfg.Mode,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.events == nil {
		l.events = eventlog.NoopLogger{}
	}

	def := cfg.UpdateThrottle
	if def == nil {
		def = DefaultUpdateThrottle
	}
	update, err := throttle.Wrap(def, &l.throttle, l.refresh)
	if err != nil {
		return nil, err
	}
	l.update = update

	return l, nil
}

// Name returns the display name.
func (l *Light) Name() string {
	return l.name
}

// Available reports whether the last update reached the controller.
func (l *Light) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// IsOn reports whether the output was powered at the last update.
func (l *Light) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.On
}

// Mode returns the detected or configured drive mode.
func (l *Light) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Brightness returns the current brightness (0-255): the white level in
// white mode, otherwise the strongest color channel.
func (l *Light) Brightness() byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode == ModeWhite {
		return l.state.W
	}
	m := l.state.R
	if l.state.G > m {
		m = l.state.G
	}
	if l.state.B > m {
		m = l.state.B
	}
	return m
}

// RGB returns the current color channels.
func (l *Light) RGB() Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Color{R: l.state.R, G: l.state.G, B: l.state.B}
}

// Effect returns the currently playing effect name, or empty when a
// static color is shown.
func (l *Light) Effect() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := EffectName(l.state.Mode)
	if !ok {
		return ""
	}
	return name
}

// EffectList returns the effects this light supports.
func (l *Light) EffectList() []string {
	effects := Effects()
	if l.customEffect != nil {
		effects = append(effects, EffectCustom)
	}
	return effects
}

// LastUpdate returns the time of the last effective state poll.
func (l *Light) LastUpdate() time.Time {
	return l.update.LastCall()
}

// TurnOnOption adjusts a TurnOn call.
type TurnOnOption func(*turnOnOpts)

type turnOnOpts struct {
	rgb        *Color
	brightness *byte
	white      *byte
	effect     string
	speedPct   int
}

// WithRGB sets a static color.
func WithRGB(c Color) TurnOnOption {
	return func(o *turnOnOpts) { o.rgb = &c }
}

// WithBrightness sets the brightness (0-255).
func WithBrightness(b byte) TurnOnOption {
	return func(o *turnOnOpts) { o.brightness = &b }
}

// WithWhite sets the white channel level (0-255), RGBW mode only.
func WithWhite(w byte) TurnOnOption {
	return func(o *turnOnOpts) { o.white = &w }
}

// WithEffect starts an effect at the given speed (0-100).
func WithEffect(name string, speedPct int) TurnOnOption {
	return func(o *turnOnOpts) {
		o.effect = name
		o.speedPct = speedPct
	}
}

// TurnOn powers the light on and applies the requested color, brightness,
// white level or effect. Unspecified values are preserved from the cached
// state, matching how physical remotes behave.
func (l *Light) TurnOn(ctx context.Context, opts ...TurnOnOption) error {
	var o turnOnOpts
	for _, opt := range opts {
		opt(&o)
	}

	if !l.IsOn() {
		if err := l.command(ctx, "turn_on", nil, l.bulb.TurnOn); err != nil {
			return err
		}
		l.mu.Lock()
		l.state.On = true
		l.mu.Unlock()
	}

	if o.effect != "" && (o.rgb != nil || o.brightness != nil || o.white != nil) {
		l.logger.Warn("color, brightness and white level are ignored when an effect is specified",
			"light", l.name, "effect", o.effect)
	}

	if o.effect != "" {
		return l.startEffect(ctx, o.effect, o.speedPct)
	}

	l.mu.Lock()
	mode := l.mode
	brightness := o.brightness
	if brightness == nil {
		b := l.brightnessLocked()
		brightness = &b
	}
	rgb := o.rgb
	if rgb == nil {
		c := Color{R: l.state.R, G: l.state.G, B: l.state.B}
		rgb = &c
	}
	white := o.white
	if white == nil && mode == ModeRGBW {
		w := l.state.W
		white = &w
	}
	l.mu.Unlock()

	args := map[string]string{
		"r": fmt.Sprint(rgb.R), "g": fmt.Sprint(rgb.G), "b": fmt.Sprint(rgb.B),
		"brightness": fmt.Sprint(*brightness),
	}

	switch mode {
	case ModeWhite:
		return l.command(ctx, "set_white", args, func(ctx context.Context) error {
			return l.bulb.SetWhite(ctx, *brightness)
		})
	case ModeRGBW:
		args["w"] = fmt.Sprint(*white)
		return l.command(ctx, "set_rgbw", args, func(ctx context.Context) error {
			return l.bulb.SetRGBW(ctx, *rgb, *white, *brightness)
		})
	default:
		return l.command(ctx, "set_rgb", args, func(ctx context.Context) error {
			return l.bulb.SetRGB(ctx, *rgb, *brightness)
		})
	}
}

// brightnessLocked mirrors Brightness without re-locking.
func (l *Light) brightnessLocked() byte {
	if l.mode == ModeWhite {
		return l.state.W
	}
	m := l.state.R
	if l.state.G > m {
		m = l.state.G
	}
	if l.state.B > m {
		m = l.state.B
	}
	return m
}

func (l *Light) startEffect(ctx context.Context, effect string, speedPct int) error {
	switch effect {
	case EffectRandom:
		c := Color{
			R: byte(rand.IntN(256)),
			G: byte(rand.IntN(256)),
			B: byte(rand.IntN(256)),
		}
		return l.command(ctx, "random_color", nil, func(ctx context.Context) error {
			return l.bulb.SetRGB(ctx, c, 255)
		})
	case EffectCustom:
		if l.customEffect == nil {
			return fmt.Errorf("fluxled: light %q has no custom effect configured", l.name)
		}
		ce := l.customEffect
		return l.command(ctx, "custom_pattern", nil, func(ctx context.Context) error {
			return l.bulb.SetCustomPattern(ctx, ce.Colors, ce.SpeedPct, ce.Transition)
		})
	default:
		args := map[string]string{"effect": effect, "speed": fmt.Sprint(speedPct)}
		return l.command(ctx, "set_effect", args, func(ctx context.Context) error {
			return l.bulb.SetPreset(ctx, effect, speedPct)
		})
	}
}

// TurnOff powers the light off.
func (l *Light) TurnOff(ctx context.Context) error {
	if err := l.command(ctx, "turn_off", nil, l.bulb.TurnOff); err != nil {
		return err
	}
	l.mu.Lock()
	l.state.On = false
	l.mu.Unlock()
	return nil
}

// Update polls the controller for fresh state. Calls are throttled: polls
// arriving within the update interval, or while another poll is in flight,
// are no-ops. Use Force to bypass the interval:
//
//	l.Update(ctx, throttle.Force())
func (l *Light) Update(ctx context.Context, opts ...throttle.CallOption) error {
	_, err := l.update.Call(ctx, opts...)
	return err
}

// refresh is the real update operation behind the throttle.
func (l *Light) refresh(ctx context.Context) (State, error) {
	if !l.bulb.Connected() {
		if err := l.bulb.Connect(ctx); err != nil {
			l.setAvailable(false)
			l.warnOnce("failed to connect to bulb", err)
			return State{}, err
		}
	}

	state, err := l.bulb.State(ctx)
	if err != nil {
		l.setAvailable(false)
		l.warnOnce("failed to read bulb state", err)
		return State{}, err
	}

	l.mu.Lock()
	old := l.state
	l.state = state
	l.available = true
	l.errorReported = false
	// Detect the drive mode from the first reply when not configured.
	if l.mode == "" {
		if state.RGBW {
			l.mode = ModeRGBW
		} else {
			l.mode = ModeRGB
		}
	}
	l.mu.Unlock()

	if old.On != state.On {
		ev := eventlog.NewEvent(eventlog.CategoryState, eventlog.KindFluxLED, l.name, l.bulb.Addr())
		ev.StateChange = &eventlog.StateChangeEvent{
			Attribute: "power",
			OldState:  onOff(old.On),
			NewState:  onOff(state.On),
		}
		l.events.Log(ev)
	}
	return state, nil
}

// command runs a control command with timing, event capture and
// availability bookkeeping.
func (l *Light) command(ctx context.Context, name string, args map[string]string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)

	ev := eventlog.NewEvent(eventlog.CategoryCommand, eventlog.KindFluxLED, l.name, l.bulb.Addr())
	ev.Command = &eventlog.CommandEvent{
		Name:     name,
		Args:     args,
		Duration: time.Since(start),
		OK:       err == nil,
	}
	l.events.Log(ev)

	if err != nil {
		l.setAvailable(false)
		return err
	}
	return nil
}

func (l *Light) setAvailable(v bool) {
	l.mu.Lock()
	l.available = v
	l.mu.Unlock()
}

// warnOnce logs the first failure at warn level, repeats at debug until
// the device recovers.
func (l *Light) warnOnce(msg string, err error) {
	l.mu.Lock()
	reported := l.errorReported
	l.errorReported = true
	l.mu.Unlock()

	if reported {
		l.logger.Debug(msg, "light", l.name, "addr", l.bulb.Addr(), "err", err)
		return
	}
	l.logger.Warn(msg, "light", l.name, "addr", l.bulb.Addr(), "err", err)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
