package discovery

import (
	"context"
	"time"

	"github.com/enbility/zeroconf/v3/api"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse watches for services of one kind. The returned channel
	// carries each instance once, with addresses aggregated across
	// interfaces, and is closed when the context is cancelled.
	Browse(ctx context.Context, kind ServiceKind) (<-chan *DeviceService, error)

	// FindByInstance searches for a specific service instance. Returns
	// when found or when the context is cancelled.
	FindByInstance(ctx context.Context, kind ServiceKind, instance string) (*DeviceService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is the default timeout for find operations.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// ConnectionFactory creates multicast connections.
	// If nil, uses the default zeroconf connection factory.
	// Set this in tests to inject mock connections.
	ConnectionFactory api.ConnectionFactory

	// InterfaceProvider lists network interfaces.
	// If nil, uses the default zeroconf interface provider.
	// Set this in tests to inject mock interface lists.
	InterfaceProvider api.InterfaceProvider
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}
