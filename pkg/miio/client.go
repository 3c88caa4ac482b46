package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Transport constants.
const (
	// DefaultPort is the miio UDP port.
	DefaultPort = 54321

	// DefaultTimeout bounds one request round-trip.
	DefaultTimeout = 5 * time.Second

	// DefaultRetries is how many times a request is re-sent on timeout.
	DefaultRetries = 3

	// handshakeMaxAge forces a fresh hello when the recorded device
	// stamp is older than this.
	handshakeMaxAge = 2 * time.Minute
)

// Transport errors.
var (
	ErrNoHandshake  = errors.New("miio: handshake failed")
	ErrIDMismatch   = errors.New("miio: response id mismatch")
	ErrRetriesSpent = errors.New("miio: no reply after retries")
)

// RPCError is an error reported by the device firmware.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("miio: device error %d: %s", e.Code, e.Message)
}

// DialFunc opens the UDP connection. Tests inject one to avoid real
// sockets.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Addr is the device address, host or host:port.
	// Port defaults to DefaultPort.
	Addr string

	// Token is the 32-character hex device token.
	Token string

	// Timeout bounds one request round-trip. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Retries is how many attempts a request gets. Defaults to
	// DefaultRetries.
	Retries int

	// Dial opens the connection. Defaults to a net.Dialer.
	Dial DialFunc

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a connection to one miio device. It is safe for concurrent
// use; requests serialize on the socket.
type Client struct {
	addr    string
	token   Token
	timeout time.Duration
	retries int
	dial    DialFunc
	logger  *slog.Logger

	mu       sync.Mutex
	conn     net.Conn
	deviceID uint32
	stamp    uint32
	stampAt  time.Time
	reqID    uint32
}

// NewClient creates a Client. It does not touch the network; the first
// request performs the handshake.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("miio: address must not be empty")
	}
	token, err := ParseToken(cfg.Token)
	if err != nil {
		return nil, err
	}

	addr := cfg.Addr
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, DefaultPort)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = DefaultRetries
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
		token:   token,
		timeout: timeout,
		retries: retries,
		dial:    dial,
		logger:  logger,
	}, nil
}

// Addr returns the device address.
func (c *Client) Addr() string {
	return c.addr
}

// DeviceID returns the device ID learned during the handshake, zero
// before the first one.
func (c *Client) DeviceID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
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
	c.stampAt = time.Time{}
	return err
}

// Handshake probes the device and records its ID and clock stamp.
func (c *Client) Handshake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakeLocked(ctx)
}

func (c *Client) handshakeLocked(ctx context.Context) error {
	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	if err := c.conn.SetDeadline(deadline(ctx, c.timeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(helloPacket()); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: %w", ErrNoHandshake, err)
	}

	buf := make([]byte, 1024)
	n, err := c.conn.Read(buf)
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: %w", ErrNoHandshake, err)
	}
	p, err := parsePacket(c.token, buf[:n])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoHandshake, err)
	}

	c.deviceID = p.DeviceID
	c.stamp = p.Stamp
	c.stampAt = time.Now()
	c.logger.Debug("miio handshake", "addr", c.addr, "device_id", p.DeviceID, "stamp", p.Stamp)
	return nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dial(ctx, "udp", c.addr)
	if err != nil {
		return fmt.Errorf("miio: connect %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.stampAt = time.Time{}
}

// request/response are the JSON-RPC frames inside encrypted payloads.
type request struct {
	ID     uint32 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ID     uint32          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Send issues one JSON-RPC call and returns the raw result. Device-side
// failures come back as *RPCError. Timed-out attempts are retried with a
// fresh handshake up to the configured retry count.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if c.stampAt.IsZero() || time.Since(c.stampAt) > handshakeMaxAge {
			if err := c.handshakeLocked(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		result, err := c.sendOnceLocked(ctx, method, params)
		if err == nil {
			return result, nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}

		lastErr = err
		c.logger.Debug("miio request failed, retrying", "addr", c.addr, "method", method,
			"attempt", attempt+1, "err", err)
		c.dropLocked()
	}
	return nil, fmt.Errorf("%w: %w", ErrRetriesSpent, lastErr)
}

func (c *Client) sendOnceLocked(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.reqID++
	req := request{ID: c.reqID, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	// The device expects its own clock value back, advanced by the time
	// elapsed since the handshake.
	stamp := c.stamp + uint32(time.Since(c.stampAt)/time.Second)
	frame := buildPacket(c.token, c.deviceID, stamp, payload)

	if err := c.conn.SetDeadline(deadline(ctx, c.timeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, err
	}

	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	p, err := parsePacket(c.token, buf[:n])
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(p.Payload, &resp); err != nil {
		return nil, fmt.Errorf("miio: decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrIDMismatch, req.ID, resp.ID)
	}
	return resp.Result, nil
}

// deadline picks the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
