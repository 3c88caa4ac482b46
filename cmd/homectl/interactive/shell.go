// Package interactive provides the interactive command-line interface
// for homectl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/adrianalin/home-assistant-series/pkg/discovery"
	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/fluxled"
	"github.com/adrianalin/home-assistant-series/pkg/hub"
	"github.com/adrianalin/home-assistant-series/pkg/mpd"
	"github.com/adrianalin/home-assistant-series/pkg/schedule"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// Shell handles interactive mode for homectl.
type Shell struct {
	hub      *hub.Hub
	eventLog string
	rl       *readline.Instance
}

// New creates a new interactive shell around the hub. eventLog is the
// path of the event log file, empty when event logging is disabled.
func New(h *hub.Hub, eventLog string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "home> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		hub:      h,
		eventLog: eventLog,
		rl:       rl,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "lights", "l":
			s.cmdLights(ctx)

		case "on":
			s.cmdPower(ctx, args, true)

		case "off":
			s.cmdPower(ctx, args, false)

		case "brightness", "b":
			s.cmdBrightness(ctx, args)

		case "rgb":
			s.cmdRGB(ctx, args)

		case "white":
			s.cmdWhite(ctx, args)

		case "effect":
			s.cmdEffect(ctx, args)

		case "effects":
			s.cmdEffects(args)

		case "temp":
			s.cmdTemp(ctx, args)

		case "delay":
			s.cmdDelay(ctx, args)

		case "timer":
			s.cmdTimer(args)

		case "timers":
			s.cmdTimers()

		case "player", "p":
			s.cmdPlayer(ctx, args)

		case "who":
			s.cmdWho(ctx)

		case "scan":
			s.cmdScan(ctx, args)

		case "update", "u":
			s.cmdUpdate(ctx, args)

		case "events":
			s.cmdEvents(args)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Home Commands:
  Lights:
    lights                       - List lights with their state
    on <light>                   - Turn a light on
    off <light>                  - Turn a light off
    brightness <light> <0-255>   - Set brightness
    rgb <light> <r> <g> <b>      - Set color (fluxled lights)
    white <light> <0-255>        - Set warm white channel (fluxled lights)
    effect <light> <name> [pct]  - Start an effect at speed pct (fluxled lights)
    effects <light>              - List supported effects (fluxled lights)
    temp <light> <mireds>        - Set color temperature (miio lights)
    delay <light> <duration>     - Schedule delayed turn-off (miio lights)

  Timers:
    timer <light> on|off <dur>   - Schedule a delayed switch
    timer cancel <light> on|off  - Cancel a pending timer
    timers                       - List pending timers

  Player:
    player                       - Show player state
    player play|pause|stop       - Transport control
    player next|prev             - Skip tracks
    player volume <0-100>        - Set volume
    player mute|unmute           - Toggle mute
    player playlists             - List stored playlists
    player load <playlist>       - Play a stored playlist

  Presence:
    who                          - Show tracked devices

  General:
    scan [flux|mdns]             - Discover devices on the network
    update [light]               - Force-refresh devices
    events [n]                   - Show last n logged events (default 10)
    help                         - Show this help
    quit                         - Exit`)
}

func (s *Shell) cmdLights(ctx context.Context) {
	lights := s.hub.Lights()
	if len(lights) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No lights configured")
		return
	}
	for _, l := range lights {
		state := "off"
		if l.On() {
			state = "on"
		}
		avail := ""
		if !l.Available() {
			avail = " (unavailable)"
		}
		fmt.Fprintf(s.rl.Stdout(), "  %-16s %s, brightness %d%s\n",
			l.Name(), state, l.Brightness(), avail)
	}
}

func (s *Shell) cmdPower(ctx context.Context, args []string, on bool) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: on|off <light>")
		return
	}
	l, err := s.hub.Light(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if on {
		err = l.TurnOn(ctx)
	} else {
		err = l.TurnOff(ctx)
	}
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdBrightness(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: brightness <light> <0-255>")
		return
	}
	l, err := s.hub.Light(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	level, err := parseByte(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid brightness: %v\n", err)
		return
	}
	if err := l.SetBrightness(ctx, level); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdRGB(ctx context.Context, args []string) {
	if len(args) != 4 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: rgb <light> <r> <g> <b>")
		return
	}
	l := s.hub.FluxLight(args[0])
	if l == nil {
		fmt.Fprintf(s.rl.Stdout(), "Not a fluxled light: %s\n", args[0])
		return
	}
	var c fluxled.Color
	for i, dst := range []*byte{&c.R, &c.G, &c.B} {
		v, err := parseByte(args[i+1])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Invalid color component: %v\n", err)
			return
		}
		*dst = v
	}
	if err := l.TurnOn(ctx, fluxled.WithRGB(c)); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdWhite(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: white <light> <0-255>")
		return
	}
	l := s.hub.FluxLight(args[0])
	if l == nil {
		fmt.Fprintf(s.rl.Stdout(), "Not a fluxled light: %s\n", args[0])
		return
	}
	w, err := parseByte(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid white level: %v\n", err)
		return
	}
	if err := l.TurnOn(ctx, fluxled.WithWhite(w)); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdEffect(ctx context.Context, args []string) {
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: effect <light> <name> [speed-pct]")
		return
	}
	l := s.hub.FluxLight(args[0])
	if l == nil {
		fmt.Fprintf(s.rl.Stdout(), "Not a fluxled light: %s\n", args[0])
		return
	}
	speed := 50
	if len(args) == 3 {
		v, err := strconv.Atoi(args[2])
		if err != nil || v < 1 || v > 100 {
			fmt.Fprintf(s.rl.Stdout(), "Invalid speed (1-100): %s\n", args[2])
			return
		}
		speed = v
	}
	if err := l.TurnOn(ctx, fluxled.WithEffect(args[1], speed)); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdEffects(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: effects <light>")
		return
	}
	l := s.hub.FluxLight(args[0])
	if l == nil {
		fmt.Fprintf(s.rl.Stdout(), "Not a fluxled light: %s\n", args[0])
		return
	}
	for _, name := range l.EffectList() {
		fmt.Fprintf(s.rl.Stdout(), "  %s\n", name)
	}
}

func (s *Shell) cmdTemp(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: temp <light> <mireds>")
		return
	}
	b := s.hub.PhilipsLight(args[0])
	if b == nil {
		fmt.Fprintf(s.rl.Stdout(), "Not a miio light: %s\n", args[0])
		return
	}
	mireds, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid mireds value: %s\n", args[1])
		return
	}
	if err := b.SetColorTemperature(ctx, mireds); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdDelay(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: delay <light> <duration, e.g. 10m>")
		return
	}
	b := s.hub.PhilipsLight(args[0])
	if b == nil {
		fmt.Fprintf(s.rl.Stdout(), "Not a miio light: %s\n", args[0])
		return
	}
	d, err := time.ParseDuration(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid duration: %v\n", err)
		return
	}
	if err := b.SetDelayedTurnOff(ctx, d); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdTimer(args []string) {
	if len(args) == 3 && args[0] == "cancel" {
		action, err := parseAction(args[2])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
			return
		}
		if err := s.hub.Timers().Cancel(args[1], action); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		}
		return
	}
	if len(args) != 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: timer <light> on|off <duration> | timer cancel <light> on|off")
		return
	}
	if _, err := s.hub.Light(args[0]); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	action, err := parseAction(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	delay, err := time.ParseDuration(args[2])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid duration: %v\n", err)
		return
	}
	if err := s.hub.Timers().Set(args[0], action, delay); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Scheduled %s %s in %v\n", args[0], args[1], delay)
}

func (s *Shell) cmdTimers() {
	timers := s.hub.Timers().Timers()
	if len(timers) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No pending timers")
		return
	}
	for _, t := range timers {
		fmt.Fprintf(s.rl.Stdout(), "  %-16s %-9s fires in %v\n",
			t.Device, t.Action, t.Remaining().Round(time.Second))
	}
}

func parseAction(s string) (schedule.Action, error) {
	switch s {
	case "on":
		return schedule.ActionTurnOn, nil
	case "off":
		return schedule.ActionTurnOff, nil
	default:
		return 0, fmt.Errorf("unknown action %q, want on or off", s)
	}
}

func (s *Shell) cmdPlayer(ctx context.Context, args []string) {
	p := s.hub.Player()
	if p == nil {
		fmt.Fprintln(s.rl.Stdout(), "No player configured")
		return
	}
	if len(args) == 0 {
		s.printPlayerState(ctx, p)
		return
	}

	var err error
	switch args[0] {
	case "play":
		err = p.Play(ctx)
	case "pause":
		err = p.Pause(ctx)
	case "stop":
		err = p.Stop(ctx)
	case "next":
		err = p.Next(ctx)
	case "prev", "previous":
		err = p.Previous(ctx)
	case "volume":
		if len(args) != 2 {
			fmt.Fprintln(s.rl.Stdout(), "Usage: player volume <0-100>")
			return
		}
		var pct int
		pct, err = strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Invalid volume: %s\n", args[1])
			return
		}
		err = p.SetVolume(ctx, float64(pct)/100)
	case "mute":
		err = p.Mute(ctx, true)
	case "unmute":
		err = p.Mute(ctx, false)
	case "playlists":
		if err = p.UpdatePlaylists(ctx, throttle.Force()); err == nil {
			for _, name := range p.Sources() {
				fmt.Fprintf(s.rl.Stdout(), "  %s\n", name)
			}
		}
	case "load":
		if len(args) != 2 {
			fmt.Fprintln(s.rl.Stdout(), "Usage: player load <playlist>")
			return
		}
		err = p.PlayMedia(ctx, mpd.MediaTypePlaylist, args[1])
	default:
		fmt.Fprintf(s.rl.Stdout(), "Unknown player command: %s\n", args[0])
		return
	}
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) printPlayerState(ctx context.Context, p *mpd.Player) {
	if err := p.Update(ctx, throttle.Force()); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "  %s: %s", p.Name(), p.State())
	if title := p.MediaTitle(); title != "" {
		fmt.Fprintf(s.rl.Stdout(), ", %s", title)
	}
	fmt.Fprintf(s.rl.Stdout(), ", volume %d%%", int(p.Volume()*100))
	if p.Muted() {
		fmt.Fprint(s.rl.Stdout(), " (muted)")
	}
	fmt.Fprintln(s.rl.Stdout())
}

func (s *Shell) cmdWho(ctx context.Context) {
	t := s.hub.Tracker()
	if t == nil {
		fmt.Fprintln(s.rl.Stdout(), "No presence tracker configured")
		return
	}
	if err := t.Update(ctx, throttle.Force()); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Scan failed: %v\n", err)
	}
	devices := t.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No devices seen yet")
		return
	}
	for _, d := range devices {
		state := "away"
		if d.Home {
			state = "home"
		}
		fmt.Fprintf(s.rl.Stdout(), "  %-18s %-16s %-6s last seen %s\n",
			d.MAC, d.Name, state, d.LastSeen.Format("15:04:05"))
	}
}

func (s *Shell) cmdScan(ctx context.Context, args []string) {
	what := "all"
	if len(args) > 0 {
		what = args[0]
	}

	if what == "all" || what == "flux" {
		fmt.Fprintln(s.rl.Stdout(), "Scanning for fluxled controllers...")
		bulbs, err := fluxled.Scan(ctx, 0)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Scan failed: %v\n", err)
		}
		for _, b := range bulbs {
			fmt.Fprintf(s.rl.Stdout(), "  %-16s id=%s model=%s\n", b.IP, b.ID, b.Model)
		}
		if len(bulbs) == 0 && err == nil {
			fmt.Fprintln(s.rl.Stdout(), "  none found")
		}
	}

	if what == "all" || what == "mdns" {
		fmt.Fprintln(s.rl.Stdout(), "Browsing mDNS services...")
		browser, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Browse failed: %v\n", err)
			return
		}
		defer browser.Stop()
		for _, kind := range []discovery.ServiceKind{discovery.ServiceMiio, discovery.ServiceMPD} {
			s.browseKind(ctx, browser, kind)
		}
	}
}

func (s *Shell) browseKind(ctx context.Context, browser discovery.Browser, kind discovery.ServiceKind) {
	browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ch, err := browser.Browse(browseCtx, kind)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Browse %s failed: %v\n", kind, err)
		return
	}
	for svc := range ch {
		fmt.Fprintf(s.rl.Stdout(), "  [%s] %s %s:%d", kind, svc.InstanceName, svc.Host, svc.Port)
		if model := svc.Model(); model != "" {
			fmt.Fprintf(s.rl.Stdout(), " model=%s", model)
		}
		fmt.Fprintln(s.rl.Stdout())
	}
}

func (s *Shell) cmdUpdate(ctx context.Context, args []string) {
	if len(args) == 0 {
		s.hub.UpdateAll(ctx, throttle.Force())
		fmt.Fprintln(s.rl.Stdout(), "Updated all devices")
		return
	}
	l, err := s.hub.Light(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if err := l.Update(ctx, throttle.Force()); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdEvents(args []string) {
	if s.eventLog == "" {
		fmt.Fprintln(s.rl.Stdout(), "Event logging is not enabled")
		return
	}
	limit := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			fmt.Fprintf(s.rl.Stdout(), "Invalid count: %s\n", args[0])
			return
		}
		limit = v
	}

	reader, err := eventlog.NewReader(s.eventLog)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Failed to open event log: %v\n", err)
		return
	}
	defer reader.Close()

	// Keep the last n events; the log is append-only.
	var last []eventlog.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Read failed: %v\n", err)
			return
		}
		last = append(last, event)
		if len(last) > limit {
			last = last[1:]
		}
	}
	for _, e := range last {
		fmt.Fprintf(s.rl.Stdout(), "  %s %-8s %-10s %s\n",
			e.Timestamp.Format("15:04:05"), e.Category, e.DeviceName, summarize(e))
	}
}

func summarize(e eventlog.Event) string {
	switch {
	case e.Command != nil:
		return fmt.Sprintf("%s ok=%v", e.Command.Name, e.Command.OK)
	case e.StateChange != nil:
		return fmt.Sprintf("%s: %s -> %s",
			e.StateChange.Attribute, e.StateChange.OldState, e.StateChange.NewState)
	case e.Presence != nil:
		if e.Presence.Home {
			return fmt.Sprintf("%s arrived", e.Presence.MAC)
		}
		return fmt.Sprintf("%s left", e.Presence.MAC)
	case e.Error != nil:
		return e.Error.Message
	default:
		return ""
	}
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}
