package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultNeighborCommand lists the router's IPv4 neighbor table.
const DefaultNeighborCommand = "ip -4 neigh show"

// neighbor table states that count as present. FAILED and INCOMPLETE
// entries are leftovers for hosts that stopped answering.
var presentStates = []string{"REACHABLE", "DELAY", "PROBE", "STALE", "PERMANENT"}

// SSHConfig configures an SSHScanner.
type SSHConfig struct {
	// Addr is the router SSH address, host or host:port. Port defaults
	// to 22.
	Addr string

	// User and Password authenticate against the router.
	User     string
	Password string

	// Command overrides DefaultNeighborCommand.
	Command string

	// HostKey pins the router's public key. When nil the key is not
	// verified; routers rarely have stable, distributable host keys.
	HostKey ssh.PublicKey

	// Timeout bounds the connection handshake and one command run.
	// Defaults to 10s.
	Timeout time.Duration

	// Dial overrides ssh.Dial. Mainly for tests.
	Dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// SSHScanner logs into a router over SSH and reads its neighbor table.
// A fresh connection is made per scan; router SSH daemons tend to drop
// idle sessions.
type SSHScanner struct {
	addr    string
	command string
	config  *ssh.ClientConfig
	dial    func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
	logger  *slog.Logger
}

// NewSSHScanner creates an SSHScanner. It does not touch the network.
func NewSSHScanner(cfg SSHConfig) (*SSHScanner, error) {
	if cfg.Addr == "" {
		return nil, errors.New("presence: ssh address must not be empty")
	}
	if cfg.User == "" {
		return nil, errors.New("presence: ssh user must not be empty")
	}

	addr := cfg.Addr
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	command := cfg.Command
	if command == "" {
		command = DefaultNeighborCommand
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.HostKey != nil {
		hostKey = ssh.FixedHostKey(cfg.HostKey)
	}
	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	dial := cfg.Dial
	if dial == nil {
		dial = ssh.Dial
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SSHScanner{
		addr:    addr,
		command: command,
		config:  clientConfig,
		dial:    dial,
		logger:  logger,
	}, nil
}

// Scan implements the Scanner interface. Addresses in exclude are
// dropped from the result.
func (s *SSHScanner) Scan(ctx context.Context, exclude []string) ([]Device, error) {
	output, err := s.run(ctx)
	if err != nil {
		return nil, err
	}

	devices := parseNeighbors(output, time.Now())
	if len(exclude) > 0 {
		devices = slices.DeleteFunc(devices, func(d Device) bool {
			return slices.Contains(exclude, d.IP)
		})
	}

	s.logger.Debug("ssh neighbor scan", "addr", s.addr, "devices", len(devices))
	return devices, nil
}

func (s *SSHScanner) run(ctx context.Context) (string, error) {
	client, err := s.dial("tcp", s.addr, s.config)
	if err != nil {
		return "", fmt.Errorf("presence: ssh connect %s: %w", s.addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("presence: ssh session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	output, err := session.Output(s.command)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("presence: run %q: %w", s.command, err)
	}
	return string(output), nil
}

// parseNeighbors decodes "ip neigh" output lines of the form
//
//	192.168.0.17 dev br0 lladdr ab:cd:ef:01:23:45 REACHABLE
func parseNeighbors(output string, now time.Time) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		state := fields[len(fields)-1]
		if !slices.Contains(presentStates, state) {
			continue
		}

		var mac string
		for i, f := range fields {
			if f == "lladdr" && i+1 < len(fields) {
				mac = fields[i+1]
				break
			}
		}
		normalized, err := NormalizeMAC(mac)
		if err != nil {
			continue
		}

		ip := fields[0]
		devices = append(devices, Device{MAC: normalized, Name: ip, IP: ip, LastSeen: now})
	}
	return devices
}
