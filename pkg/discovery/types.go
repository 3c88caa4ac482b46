package discovery

import (
	"errors"
	"strings"
	"time"
)

// mDNS constants.
const (
	// ServiceTypeMiio is the service type announced by miio devices.
	ServiceTypeMiio = "_miio._udp"

	// ServiceTypeMPD is the service type announced by MPD daemons.
	ServiceTypeMPD = "_mpd._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// BrowseTimeout is the default timeout for browse operations.
	BrowseTimeout = 10 * time.Second
)

// ErrUnknownServiceKind is returned for service kinds the browser does
// not know.
var ErrUnknownServiceKind = errors.New("discovery: unknown service kind")

// ServiceKind identifies what kind of service an announcement is.
type ServiceKind int

const (
	// ServiceMiio is a miio device announcement.
	ServiceMiio ServiceKind = iota

	// ServiceMPD is an MPD daemon announcement.
	ServiceMPD
)

// String implements the Stringer interface.
func (k ServiceKind) String() string {
	switch k {
	case ServiceMiio:
		return "miio"
	case ServiceMPD:
		return "mpd"
	}
	return "unknown"
}

// serviceType returns the mDNS service type for the kind.
func (k ServiceKind) serviceType() (string, error) {
	switch k {
	case ServiceMiio:
		return ServiceTypeMiio, nil
	case ServiceMPD:
		return ServiceTypeMPD, nil
	}
	return "", ErrUnknownServiceKind
}

// DeviceService is one discovered service instance.
type DeviceService struct {
	// Kind is what announced the service.
	Kind ServiceKind

	// InstanceName is the mDNS instance name. miio devices encode their
	// model and device ID here, e.g. "philips-light-bulb_miio76334333".
	InstanceName string

	// Host is the announced host name.
	Host string

	// Port is the service port.
	Port uint16

	// Addresses are the IPv4 and IPv6 addresses, aggregated across
	// interfaces.
	Addresses []string

	// Properties are the TXT record key/value pairs.
	Properties map[string]string
}

// Model derives the miio model from the instance name, turning
// "philips-light-bulb_miio76334333" into "philips.light.bulb". Empty for
// non-miio services.
func (s *DeviceService) Model() string {
	if s.Kind != ServiceMiio {
		return ""
	}
	name, _, _ := strings.Cut(s.InstanceName, "_miio")
	return strings.ReplaceAll(name, "-", ".")
}

// ParseTXT decodes "key=value" TXT record strings. Records without an
// equals sign become keys with an empty value.
func ParseTXT(records []string) map[string]string {
	props := make(map[string]string, len(records))
	for _, r := range records {
		if r == "" {
			continue
		}
		key, value, _ := strings.Cut(r, "=")
		props[key] = value
	}
	return props
}
