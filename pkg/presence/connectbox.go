package presence

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// getter.xml function numbers of the Connect Box firmware.
const (
	fnLogin      = 15
	fnLanClients = 123
)

// ConnectBox errors.
var (
	ErrLoginFailed = errors.New("presence: connect box login failed")
	ErrNoToken     = errors.New("presence: connect box session token missing")
)

// ConnectBoxConfig configures a ConnectBoxScanner.
type ConnectBoxConfig struct {
	// Host is the router address, without scheme.
	Host string

	// Password is the router admin password.
	Password string

	// Timeout bounds one HTTP exchange. Defaults to 10s.
	Timeout time.Duration

	// Client overrides the HTTP client. Mainly for tests.
	Client *http.Client

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// ConnectBoxScanner reads the LAN client table of a UPC Connect Box
// router. The firmware speaks form-encoded requests against getter.xml
// and setter.xml, authenticated by a session token cookie that rotates
// on every response.
type ConnectBoxScanner struct {
	base     string
	password string
	client   *http.Client
	logger   *slog.Logger
}

// NewConnectBoxScanner creates a ConnectBoxScanner. It does not touch
// the network; the first scan logs in.
func NewConnectBoxScanner(cfg ConnectBoxConfig) (*ConnectBoxScanner, error) {
	if cfg.Host == "" {
		return nil, errors.New("presence: connect box host must not be empty")
	}
	if cfg.Password == "" {
		return nil, errors.New("presence: connect box password must not be empty")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client.Jar = jar
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ConnectBoxScanner{
		base:     "http://" + cfg.Host,
		password: cfg.Password,
		client:   client,
		logger:   logger,
	}, nil
}

// lanUserTable mirrors the getter.xml fun=123 response.
type lanUserTable struct {
	Ethernet []lanClient `xml:"Ethernet>clientinfo"`
	WIFI     []lanClient `xml:"WIFI>clientinfo"`
}

type lanClient struct {
	Hostname string `xml:"hostname"`
	MAC      string `xml:"MACAddr"`
	IPv4     string `xml:"IPv4Addr"`
}

// Scan implements the Scanner interface. The router reports every
// connected client, so exclude is ignored.
func (s *ConnectBoxScanner) Scan(ctx context.Context, exclude []string) ([]Device, error) {
	raw, err := s.getter(ctx, fnLanClients)
	if err != nil {
		// Token expired or never obtained; log in and retry once.
		if err := s.login(ctx); err != nil {
			return nil, err
		}
		raw, err = s.getter(ctx, fnLanClients)
		if err != nil {
			return nil, err
		}
	}

	var table lanUserTable
	if err := xml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("presence: parse lan client table: %w", err)
	}

	now := time.Now()
	var devices []Device
	for _, c := range append(table.Ethernet, table.WIFI...) {
		mac, err := NormalizeMAC(c.MAC)
		if err != nil {
			s.logger.Debug("skipping client with bad mac", "mac", c.MAC)
			continue
		}
		name := c.Hostname
		if name == "" {
			name = c.IPv4
		}
		// The firmware pads empty IPv4 slots with dashes.
		ip := strings.Trim(c.IPv4, "-")
		devices = append(devices, Device{MAC: mac, Name: name, IP: ip, LastSeen: now})
	}

	s.logger.Debug("connect box scan", "devices", len(devices))
	return devices, nil
}

// login fetches a fresh session token and authenticates with it.
func (s *ConnectBoxScanner) login(ctx context.Context) error {
	// The landing page seeds the session token cookie.
	if err := s.get(ctx, "/common_page/login.html"); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	form := url.Values{
		"token":    {s.token()},
		"fun":      {fmt.Sprint(fnLogin)},
		"Username": {"NULL"},
		"Password": {s.password},
	}
	resp, err := s.post(ctx, "/xml/setter.xml", form)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)

	s.logger.Debug("connect box login ok")
	return nil
}

// getter runs one getter.xml function and returns the body.
func (s *ConnectBoxScanner) getter(ctx context.Context, fn int) ([]byte, error) {
	token := s.token()
	if token == "" {
		return nil, ErrNoToken
	}

	form := url.Values{
		"token": {token},
		"fun":   {fmt.Sprint(fn)},
	}
	resp, err := s.post(ctx, "/xml/getter.xml", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("presence: getter fun=%d: status %d", fn, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *ConnectBoxScanner) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *ConnectBoxScanner) post(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.client.Do(req)
}

// token returns the current session token cookie, empty when no session
// exists yet.
func (s *ConnectBoxScanner) token() string {
	u, err := url.Parse(s.base)
	if err != nil {
		return ""
	}
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == "sessionToken" {
			return c.Value
		}
	}
	return ""
}
