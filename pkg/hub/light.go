package hub

import (
	"context"

	"github.com/adrianalin/home-assistant-series/pkg/fluxled"
	"github.com/adrianalin/home-assistant-series/pkg/miio"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// Light is the control surface the hub offers for any light, whatever
// protocol sits behind it.
type Light interface {
	// Name returns the display name.
	Name() string

	// Available reports whether the device answered recently.
	Available() bool

	// On reports whether the light is on, per the last update.
	On() bool

	// Brightness returns the brightness 0-255, per the last update.
	Brightness() byte

	// TurnOn switches the light on.
	TurnOn(ctx context.Context) error

	// TurnOff switches the light off.
	TurnOff(ctx context.Context) error

	// SetBrightness sets the brightness from a 0-255 value.
	SetBrightness(ctx context.Context, level byte) error

	// Update polls the device. Polls are throttled; pass
	// throttle.Force() to bypass the interval.
	Update(ctx context.Context, opts ...throttle.CallOption) error
}

// fluxLight adapts a fluxled light.
type fluxLight struct {
	*fluxled.Light
}

func (f fluxLight) On() bool {
	return f.IsOn()
}

func (f fluxLight) TurnOn(ctx context.Context) error {
	return f.Light.TurnOn(ctx)
}

func (f fluxLight) SetBrightness(ctx context.Context, level byte) error {
	return f.Light.TurnOn(ctx, fluxled.WithBrightness(level))
}

// philipsLight adapts a miio Philips bulb.
type philipsLight struct {
	*miio.PhilipsBulb
}

func (p philipsLight) On() bool {
	return p.Status().Power
}

func (p philipsLight) Brightness() byte {
	return p.Status().Brightness
}

func (p philipsLight) TurnOn(ctx context.Context) error {
	return p.SetPower(ctx, true)
}

func (p philipsLight) TurnOff(ctx context.Context) error {
	return p.SetPower(ctx, false)
}

var (
	_ Light = fluxLight{}
	_ Light = philipsLight{}
)
