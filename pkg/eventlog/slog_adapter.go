package eventlog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes device events to an slog.Logger.
// Useful for development when you want to see events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("id", event.ID),
		slog.String("category", event.Category.String()),
		slog.String("kind", event.DeviceKind.String()),
	}

	if event.DeviceName != "" {
		attrs = append(attrs, slog.String("device", event.DeviceName))
	}
	if event.Address != "" {
		attrs = append(attrs, slog.String("address", event.Address))
	}

	switch {
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("command", event.Command.Name),
			slog.Bool("ok", event.Command.OK),
		)
		if event.Command.Duration > 0 {
			attrs = append(attrs, slog.Duration("duration", event.Command.Duration))
		}
		for k, v := range event.Command.Args {
			attrs = append(attrs, slog.String("arg_"+k, v))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("attribute", event.StateChange.Attribute),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
	case event.Presence != nil:
		attrs = append(attrs,
			slog.String("mac", event.Presence.MAC),
			slog.Bool("home", event.Presence.Home),
		)
		if event.Presence.Host != "" {
			attrs = append(attrs, slog.String("host", event.Presence.Host))
		}
		if event.Presence.IP != "" {
			attrs = append(attrs, slog.String("ip", event.Presence.IP))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "device", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
