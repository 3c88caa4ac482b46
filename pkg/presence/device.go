package presence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device is one network device reported by a scan.
type Device struct {
	// MAC is the hardware address, upper case.
	MAC string

	// Name is the hostname where the scanner learned one, otherwise
	// the IP.
	Name string

	// IP is the IPv4 address.
	IP string

	// LastSeen is when the scan found the device.
	LastSeen time.Time
}

// Scanner probes the network for devices. Addresses listed in exclude
// are skipped where the underlying mechanism supports it.
type Scanner interface {
	Scan(ctx context.Context, exclude []string) ([]Device, error)
}

// KnownDevice is one persisted device registry entry.
type KnownDevice struct {
	// MAC is the hardware address, upper case.
	MAC string `yaml:"mac"`

	// Name is the display name, defaulted from the first sighting.
	Name string `yaml:"name"`

	// Track enables home/away events for the device.
	Track bool `yaml:"track"`

	// FirstSeen is when the device first appeared.
	FirstSeen time.Time `yaml:"first_seen"`
}

// ErrBadMAC is returned for malformed hardware addresses.
var ErrBadMAC = errors.New("presence: malformed mac address")

// NormalizeMAC upper-cases a colon-separated hardware address.
func NormalizeMAC(mac string) (string, error) {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrBadMAC, mac)
	}
	for _, p := range parts {
		if len(p) != 2 {
			return "", fmt.Errorf("%w: %q", ErrBadMAC, mac)
		}
	}
	return strings.ToUpper(mac), nil
}

// LoadKnownDevices reads the device registry. A missing file is an
// empty registry.
func LoadKnownDevices(path string) (map[string]KnownDevice, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]KnownDevice{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("presence: read %s: %w", path, err)
	}

	var list []KnownDevice
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("presence: parse %s: %w", path, err)
	}

	known := make(map[string]KnownDevice, len(list))
	for _, d := range list {
		mac, err := NormalizeMAC(d.MAC)
		if err != nil {
			return nil, err
		}
		d.MAC = mac
		known[mac] = d
	}
	return known, nil
}

// SaveKnownDevices writes the device registry.
func SaveKnownDevices(path string, known map[string]KnownDevice) error {
	list := make([]KnownDevice, 0, len(known))
	for _, d := range known {
		list = append(list, d)
	}
	slices.SortFunc(list, func(a, b KnownDevice) int {
		return strings.Compare(a.MAC, b.MAC)
	})

	raw, err := yaml.Marshal(list)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("presence: write %s: %w", path, err)
	}
	return nil
}
