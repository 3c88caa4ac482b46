package mpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPort is the MPD control port.
	DefaultPort = 6600

	// DefaultTimeout bounds one command round-trip.
	DefaultTimeout = 5 * time.Second
)

// Client errors.
var (
	ErrBadBanner = errors.New("mpd: unexpected banner")
	ErrBadLine   = errors.New("mpd: malformed response line")
)

// ACKError is a command failure reported by the daemon.
type ACKError struct {
	Code    int
	Index   int
	Command string
	Message string
}

// Error implements the error interface.
func (e *ACKError) Error() string {
	return fmt.Sprintf("mpd: ack %d {%s}: %s", e.Code, e.Command, e.Message)
}

// DialFunc opens the TCP connection. Tests inject one to avoid real
// sockets.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Addr is the daemon address, host or host:port. Port defaults to
	// DefaultPort.
	Addr string

	// Timeout bounds one command round-trip. Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	// Dial opens the connection. Defaults to a net.Dialer.
	Dial DialFunc

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a connection to one MPD daemon. It is safe for concurrent
// use; commands serialize on the socket. The connection is opened on
// first use and reopened after errors.
type Client struct {
	addr    string
	timeout time.Duration
	dial    DialFunc
	logger  *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	version string
}

// NewClient creates a Client. It does not touch the network.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("mpd: address must not be empty")
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
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		addr:    addr,
		timeout: timeout,
		dial:    dial,
		logger:  logger,
	}, nil
}

// Addr returns the daemon address.
func (c *Client) Addr() string {
	return c.addr
}

// Version returns the protocol version from the banner, empty before the
// first connect.
func (c *Client) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Close closes the connection. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Command(ctx, "ping")
	return err
}

// Command runs one command and returns the response attributes. Repeated
// keys keep the last value; use CommandValues for list responses.
func (c *Client) Command(ctx context.Context, cmd string) (map[string]string, error) {
	attrs := map[string]string{}
	err := c.run(ctx, cmd, func(key, value string) {
		attrs[key] = value
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// CommandValues runs one command and collects every value of one key, in
// response order.
func (c *Client) CommandValues(ctx context.Context, cmd, key string) ([]string, error) {
	var values []string
	err := c.run(ctx, cmd, func(k, value string) {
		if k == key {
			values = append(values, value)
		}
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (c *Client) run(ctx context.Context, cmd string, visit func(key, value string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	if err := c.conn.SetDeadline(deadline(ctx, c.timeout)); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(c.conn, "%s\n", cmd); err != nil {
		c.dropLocked()
		return fmt.Errorf("mpd: send %q: %w", cmd, err)
	}

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.dropLocked()
			return fmt.Errorf("mpd: read response: %w", err)
		}
		line = strings.TrimRight(line, "\n")

		if line == "OK" {
			return nil
		}
		if strings.HasPrefix(line, "ACK ") {
			// Protocol errors leave the connection usable.
			return parseACK(line)
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			c.dropLocked()
			return fmt.Errorf("%w: %q", ErrBadLine, line)
		}
		visit(key, value)
	}
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("mpd: connect %s: %w", c.addr, err)
	}
	reader := bufio.NewReader(conn)

	if err := conn.SetDeadline(deadline(ctx, c.timeout)); err != nil {
		conn.Close()
		return err
	}
	banner, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return fmt.Errorf("mpd: read banner: %w", err)
	}
	version, ok := strings.CutPrefix(strings.TrimRight(banner, "\n"), "OK MPD ")
	if !ok {
		conn.Close()
		return fmt.Errorf("%w: %q", ErrBadBanner, banner)
	}

	c.conn = conn
	c.reader = reader
	c.version = version
	c.logger.Debug("mpd connected", "addr", c.addr, "version", version)
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// parseACK decodes "ACK [code@index] {command} message".
func parseACK(line string) error {
	ack := &ACKError{Message: line}

	rest, ok := strings.CutPrefix(line, "ACK [")
	if !ok {
		return ack
	}
	codes, rest, ok := strings.Cut(rest, "] {")
	if !ok {
		return ack
	}
	command, message, ok := strings.Cut(rest, "} ")
	if !ok {
		return ack
	}

	codeStr, indexStr, _ := strings.Cut(codes, "@")
	ack.Code, _ = strconv.Atoi(codeStr)
	ack.Index, _ = strconv.Atoi(indexStr)
	ack.Command = command
	ack.Message = message
	return ack
}

// quote wraps an argument in double quotes, escaping as the protocol
// requires.
func quote(arg string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(arg) + `"`
}

// deadline picks the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
