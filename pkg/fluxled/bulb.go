package fluxled

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultPort is the controller's TCP control port.
const DefaultPort = 5577

// DefaultTimeout bounds each command round-trip.
const DefaultTimeout = 5 * time.Second

// ErrNotConnected is returned for commands issued before Connect.
var ErrNotConnected = errors.New("fluxled: not connected")

// DialFunc opens the control connection. Tests inject one to avoid real
// sockets.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config configures a Bulb.
type Config struct {
	// Addr is the controller address, host or host:port.
	// Port defaults to DefaultPort.
	Addr string

	// Timeout bounds each command round-trip. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Protocol selects the wire format. Defaults to ProtocolLEDENET.
	Protocol Protocol

	// Dial opens the control connection. Defaults to a net.Dialer.
	Dial DialFunc
}

// Bulb is a connection to one LED strip controller.
// It is safe for concurrent use; commands serialize on the connection.
type Bulb struct {
	addr     string
	timeout  time.Duration
	protocol Protocol
	dial     DialFunc

	mu   sync.Mutex
	conn net.Conn
}

// NewBulb creates a Bulb for the given configuration. It does not connect;
// call Connect first or use Light, which connects lazily.
func NewBulb(cfg Config) (*Bulb, error) {
	if cfg.Addr == "" {
		return nil, errors.New("fluxled: address must not be empty")
	}
	addr := cfg.Addr
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, DefaultPort)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dial := cfg.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: timeout}
		dial = d.DialContext
	}
	return &Bulb{
		addr:     addr,
		timeout:  timeout,
		protocol: cfg.Protocol,
		dial:     dial,
	}, nil
}

// Addr returns the controller address.
func (b *Bulb) Addr() string {
	return b.addr
}

// Protocol returns the wire format in use.
func (b *Bulb) Protocol() Protocol {
	return b.protocol
}

// SetProtocol overrides the wire format. Call before issuing commands.
func (b *Bulb) SetProtocol(p Protocol) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.protocol = p
}

// Connect opens the control connection.
func (b *Bulb) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}
	conn, err := b.dial(ctx, "tcp", b.addr)
	if err != nil {
		return fmt.Errorf("fluxled: connect %s: %w", b.addr, err)
	}
	b.conn = conn
	return nil
}

// Close closes the control connection. Safe to call when not connected.
func (b *Bulb) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// Connected reports whether the control connection is open.
func (b *Bulb) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// send writes a frame while holding the connection lock. The connection is
// dropped on write errors so the next command reconnects.
func (b *Bulb) send(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(ctx, frame)
}

func (b *Bulb) sendLocked(ctx context.Context, frame []byte) error {
	if b.conn == nil {
		return ErrNotConnected
	}
	if err := b.conn.SetWriteDeadline(deadline(ctx, b.timeout)); err != nil {
		return err
	}
	if _, err := b.conn.Write(frame); err != nil {
		b.conn.Close()
		b.conn = nil
		return fmt.Errorf("fluxled: write to %s: %w", b.addr, err)
	}
	return nil
}

// TurnOn powers the output on.
func (b *Bulb) TurnOn(ctx context.Context) error {
	return b.send(ctx, powerFrame(b.protocol, true))
}

// TurnOff powers the output off.
func (b *Bulb) TurnOff(ctx context.Context) error {
	return b.send(ctx, powerFrame(b.protocol, false))
}

// SetRGB writes a static color, scaled by brightness (0-255).
func (b *Bulb) SetRGB(ctx context.Context, c Color, brightness byte) error {
	scaled := scale(c, brightness)
	return b.send(ctx, colorFrame(b.protocol, scaled.R, scaled.G, scaled.B, 0))
}

// SetRGBW writes a static color plus white level, scaled by brightness.
func (b *Bulb) SetRGBW(ctx context.Context, c Color, w, brightness byte) error {
	scaled := scale(c, brightness)
	return b.send(ctx, colorFrame(b.protocol, scaled.R, scaled.G, scaled.B, scaleChannel(w, brightness)))
}

// SetWhite drives only the white channel, for controllers wired to plain
// white strips.
func (b *Bulb) SetWhite(ctx context.Context, level byte) error {
	return b.send(ctx, colorFrame(b.protocol, 0, 0, 0, level))
}

// SetPreset starts a built-in effect at the given speed (0-100).
func (b *Bulb) SetPreset(ctx context.Context, effect string, speedPct int) error {
	code, ok := EffectCode(effect)
	if !ok {
		return fmt.Errorf("fluxled: unknown effect %q", effect)
	}
	return b.send(ctx, presetFrame(code, speedPct))
}

// SetCustomPattern starts a custom color pattern.
func (b *Bulb) SetCustomPattern(ctx context.Context, colors []Color, speedPct int, transition byte) error {
	frame, err := customFrame(colors, speedPct, transition)
	if err != nil {
		return fmt.Errorf("fluxled: %w", err)
	}
	return b.send(ctx, frame)
}

// State queries the controller and returns the decoded reply.
func (b *Bulb) State(ctx context.Context) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sendLocked(ctx, stateQueryFrame(b.protocol)); err != nil {
		return State{}, err
	}
	if b.conn == nil {
		return State{}, ErrNotConnected
	}
	if err := b.conn.SetReadDeadline(deadline(ctx, b.timeout)); err != nil {
		return State{}, err
	}

	reply := make([]byte, stateReplyLen)
	n := 0
	for n < stateReplyLen {
		m, err := b.conn.Read(reply[n:])
		if err != nil {
			b.conn.Close()
			b.conn = nil
			return State{}, fmt.Errorf("fluxled: read state from %s: %w", b.addr, err)
		}
		n += m
	}
	return parseState(reply)
}

// scale multiplies each channel by brightness/255.
func scale(c Color, brightness byte) Color {
	return Color{
		R: scaleChannel(c.R, brightness),
		G: scaleChannel(c.G, brightness),
		B: scaleChannel(c.B, brightness),
	}
}

func scaleChannel(v, brightness byte) byte {
	return byte(uint16(v) * uint16(brightness) / 255)
}

// deadline picks the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
