package fluxled

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Discovery constants.
const (
	// DiscoveryPort is the UDP port controllers listen on for discovery.
	DiscoveryPort = 48899

	// discoveryMagic is the vendor probe string controllers answer to.
	discoveryMagic = "HF-A11ASSISTHREAD"

	// DefaultScanTimeout bounds a discovery sweep.
	DefaultScanTimeout = 10 * time.Second
)

// DiscoveredBulb describes a controller found on the LAN.
type DiscoveredBulb struct {
	// IP is the controller address.
	IP string

	// ID is the controller hardware ID (MAC without separators).
	ID string

	// Model is the vendor model string.
	Model string
}

// Name returns the "<id> <ip>" display name convention for discovered
// controllers.
func (d DiscoveredBulb) Name() string {
	return fmt.Sprintf("%s %s", d.ID, d.IP)
}

// Scan broadcasts the discovery probe and collects replies until the
// timeout or the context expires. Duplicate replies from the same address
// are dropped.
func Scan(ctx context.Context, timeout time.Duration) ([]DiscoveredBulb, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("fluxled: discovery socket: %w", err)
	}
	defer conn.Close()

	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: DiscoveryPort}
	if _, err := conn.WriteToUDP([]byte(discoveryMagic), bcast); err != nil {
		return nil, fmt.Errorf("fluxled: discovery probe: %w", err)
	}

	dl := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(dl) {
		dl = cd
	}
	if err := conn.SetReadDeadline(dl); err != nil {
		return nil, err
	}

	var found []DiscoveredBulb
	seen := make(map[string]struct{})
	buf := make([]byte, 64)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Deadline reached ends the sweep.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return found, nil
			}
			return found, err
		}
		bulb, ok := parseDiscoveryReply(string(buf[:n]))
		if !ok {
			continue
		}
		if _, dup := seen[bulb.IP]; dup {
			continue
		}
		seen[bulb.IP] = struct{}{}
		found = append(found, bulb)
	}
}

// parseDiscoveryReply parses the "ip,id,model" reply format. Controllers
// echo the probe string back; that is not a reply.
func parseDiscoveryReply(reply string) (DiscoveredBulb, bool) {
	if reply == discoveryMagic {
		return DiscoveredBulb{}, false
	}
	parts := strings.Split(strings.TrimSpace(reply), ",")
	if len(parts) != 3 {
		return DiscoveredBulb{}, false
	}
	if net.ParseIP(parts[0]) == nil {
		return DiscoveredBulb{}, false
	}
	return DiscoveredBulb{IP: parts[0], ID: parts[1], Model: parts[2]}, true
}
