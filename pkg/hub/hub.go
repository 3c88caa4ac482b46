package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adrianalin/home-assistant-series/pkg/config"
	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/fluxled"
	"github.com/adrianalin/home-assistant-series/pkg/miio"
	"github.com/adrianalin/home-assistant-series/pkg/mpd"
	"github.com/adrianalin/home-assistant-series/pkg/presence"
	"github.com/adrianalin/home-assistant-series/pkg/schedule"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// ErrUnknownLight is returned when a light name is not configured.
var ErrUnknownLight = errors.New("hub: unknown light")

// Hub holds the configured devices.
type Hub struct {
	cfg    *config.Config
	logger *slog.Logger
	events eventlog.Logger

	eventFile *eventlog.FileLogger
	lights    []Light
	byName    map[string]Light
	flux      map[string]*fluxled.Light
	philips   map[string]*miio.PhilipsBulb
	player    *mpd.Player
	tracker   *presence.Tracker
	timers    *schedule.Manager
}

// New builds the devices the config describes. It does not touch the
// network; devices connect on first use.
func New(cfg *config.Config, logger *slog.Logger) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("hub: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		byName:  map[string]Light{},
		flux:    map[string]*fluxled.Light{},
		philips: map[string]*miio.PhilipsBulb{},
		timers:  schedule.NewManager(),
	}
	h.timers.OnFire(h.runScheduled)

	events := []eventlog.Logger{eventlog.NewSlogAdapter(logger)}
	if cfg.EventLog != "" {
		file, err := eventlog.NewFileLogger(cfg.EventLog)
		if err != nil {
			return nil, err
		}
		h.eventFile = file
		events = append(events, file)
	}
	h.events = eventlog.NewMultiLogger(events...)

	for _, lc := range cfg.Lights {
		light, err := h.buildLight(lc)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.lights = append(h.lights, light)
		h.byName[light.Name()] = light
	}

	if cfg.MPD != nil {
		if err := h.buildPlayer(*cfg.MPD); err != nil {
			h.Close()
			return nil, err
		}
	}

	if cfg.Presence != nil {
		if err := h.buildTracker(*cfg.Presence); err != nil {
			h.Close()
			return nil, err
		}
	}

	return h, nil
}

func (h *Hub) buildLight(lc config.Light) (Light, error) {
	var def *throttle.Definition
	if lc.UpdateInterval > 0 {
		def = throttle.New(lc.UpdateInterval.Std())
	}

	switch lc.Type {
	case config.LightTypeFluxLED:
		light, err := fluxled.NewLight(fluxled.LightConfig{
			Name:           lc.Name,
			Bulb:           fluxled.Config{Addr: lc.Address},
			Mode:           fluxled.Mode(lc.Mode),
			CustomEffect:   customEffect(lc.CustomEffect),
			UpdateThrottle: def,
			Logger:         h.logger,
			Events:         h.events,
		})
		if err != nil {
			return nil, err
		}
		h.flux[lc.Name] = light
		return fluxLight{light}, nil

	case config.LightTypeMiio:
		client, err := miio.NewClient(miio.ClientConfig{
			Addr:   lc.Address,
			Token:  lc.Token,
			Logger: h.logger,
		})
		if err != nil {
			return nil, err
		}
		bulb, err := miio.NewPhilipsBulb(client, miio.BulbConfig{
			Name:           lc.Name,
			Addr:           lc.Address,
			UpdateThrottle: def,
			Logger:         h.logger,
			Events:         h.events,
		})
		if err != nil {
			return nil, err
		}
		h.philips[lc.Name] = bulb
		return philipsLight{bulb}, nil
	}
	return nil, fmt.Errorf("hub: light %q: unsupported type %q", lc.Name, lc.Type)
}

func customEffect(ce *config.CustomEffect) *fluxled.CustomEffect {
	if ce == nil {
		return nil
	}

	effect := &fluxled.CustomEffect{
		SpeedPct:   ce.Speed,
		Transition: fluxled.TransitionGradual,
	}
	switch ce.Transition {
	case "jump":
		effect.Transition = fluxled.TransitionJump
	case "strobe":
		effect.Transition = fluxled.TransitionStrobe
	}
	for _, c := range ce.Colors {
		effect.Colors = append(effect.Colors, fluxled.Color{R: c[0], G: c[1], B: c[2]})
	}
	return effect
}

func (h *Hub) buildPlayer(mc config.MPD) error {
	client, err := mpd.NewClient(mpd.ClientConfig{
		Addr:   mc.Address,
		Logger: h.logger,
	})
	if err != nil {
		return err
	}

	var def *throttle.Definition
	if mc.UpdateInterval > 0 {
		def = throttle.New(mc.UpdateInterval.Std())
	}
	player, err := mpd.NewPlayer(client, mpd.PlayerConfig{
		Name:           mc.Name,
		Addr:           mc.Address,
		UpdateThrottle: def,
		Logger:         h.logger,
		Events:         h.events,
	})
	if err != nil {
		return err
	}
	h.player = player
	return nil
}

func (h *Hub) buildTracker(pc config.Presence) error {
	var scanner presence.Scanner
	var err error
	switch pc.Scanner {
	case config.ScannerTypeConnectBox:
		scanner, err = presence.NewConnectBoxScanner(presence.ConnectBoxConfig{
			Host:     pc.Host,
			Password: pc.Password,
			Logger:   h.logger,
		})
	case config.ScannerTypeSSH:
		scanner, err = presence.NewSSHScanner(presence.SSHConfig{
			Addr:     pc.Host,
			User:     pc.User,
			Password: pc.Password,
			Command:  pc.Command,
			Logger:   h.logger,
		})
	default:
		err = fmt.Errorf("hub: unsupported scanner type %q", pc.Scanner)
	}
	if err != nil {
		return err
	}

	tracker, err := presence.NewTracker(presence.TrackerConfig{
		Scanner:          scanner,
		HomeInterval:     pc.HomeInterval.Std(),
		ConsiderHome:     pc.ConsiderHome.Std(),
		Exclude:          pc.Exclude,
		KnownDevicesPath: pc.KnownDevices,
		Logger:           h.logger,
		Events:           h.events,
	})
	if err != nil {
		return err
	}
	h.tracker = tracker
	return nil
}

// Lights returns every configured light, in config order.
func (h *Hub) Lights() []Light {
	return h.lights
}

// Light returns one light by name.
func (h *Hub) Light(name string) (Light, error) {
	light, ok := h.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLight, name)
	}
	return light, nil
}

// FluxLight returns the fluxled light behind a name, for effect control
// that the common Light surface does not cover. Nil when the name is
// not a fluxled light.
func (h *Hub) FluxLight(name string) *fluxled.Light {
	return h.flux[name]
}

// PhilipsLight returns the miio bulb behind a name, for color
// temperature control that the common Light surface does not cover.
// Nil when the name is not a miio light.
func (h *Hub) PhilipsLight(name string) *miio.PhilipsBulb {
	return h.philips[name]
}

// Player returns the media player, nil when not configured.
func (h *Hub) Player() *mpd.Player {
	return h.player
}

// Tracker returns the presence tracker, nil when not configured.
func (h *Hub) Tracker() *presence.Tracker {
	return h.tracker
}

// Events returns the event logger devices report into.
func (h *Hub) Events() eventlog.Logger {
	return h.events
}

// Timers returns the schedule manager for delayed light actions.
func (h *Hub) Timers() *schedule.Manager {
	return h.timers
}

// runScheduled executes a fired schedule timer.
func (h *Hub) runScheduled(device string, action schedule.Action) {
	light, err := h.Light(device)
	if err != nil {
		h.logger.Warn("scheduled action for unknown light", "light", device)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch action {
	case schedule.ActionTurnOn:
		err = light.TurnOn(ctx)
	case schedule.ActionTurnOff:
		err = light.TurnOff(ctx)
	default:
		return
	}
	if err != nil {
		h.logger.Warn("scheduled action failed",
			"light", device, "action", action.String(), "err", err)
	}
}

// UpdateAll polls every configured device once. Individual failures are
// logged, not returned; one unreachable device must not block the rest.
func (h *Hub) UpdateAll(ctx context.Context, opts ...throttle.CallOption) {
	for _, light := range h.lights {
		if err := light.Update(ctx, opts...); err != nil {
			h.logger.Warn("light update failed", "light", light.Name(), "err", err)
		}
	}
	if h.player != nil {
		if err := h.player.Update(ctx, opts...); err != nil {
			h.logger.Warn("player update failed", "player", h.player.Name(), "err", err)
		}
	}
	if h.tracker != nil {
		if err := h.tracker.Update(ctx, opts...); err != nil {
			h.logger.Warn("presence sweep failed", "err", err)
		}
	}
}

// Run polls devices periodically until the context is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		h.UpdateAll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close cancels pending timers and releases the event log file.
func (h *Hub) Close() error {
	h.timers.CancelAll()
	if h.eventFile != nil {
		return h.eventFile.Close()
	}
	return nil
}
