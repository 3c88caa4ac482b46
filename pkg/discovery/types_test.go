package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceKindString(t *testing.T) {
	assert.Equal(t, "miio", ServiceMiio.String())
	assert.Equal(t, "mpd", ServiceMPD.String())
	assert.Equal(t, "unknown", ServiceKind(9).String())
}

func TestServiceKindServiceType(t *testing.T) {
	st, err := ServiceMiio.serviceType()
	require.NoError(t, err)
	assert.Equal(t, ServiceTypeMiio, st)

	st, err = ServiceMPD.serviceType()
	require.NoError(t, err)
	assert.Equal(t, ServiceTypeMPD, st)

	_, err = ServiceKind(9).serviceType()
	assert.ErrorIs(t, err, ErrUnknownServiceKind)
}

func TestParseTXT(t *testing.T) {
	props := ParseTXT([]string{"epoch=1", "mac=AB:CD", "flag", ""})
	assert.Equal(t, map[string]string{
		"epoch": "1",
		"mac":   "AB:CD",
		"flag":  "",
	}, props)
}

func TestDeviceServiceModel(t *testing.T) {
	svc := &DeviceService{
		Kind:         ServiceMiio,
		InstanceName: "philips-light-bulb_miio76334333",
	}
	assert.Equal(t, "philips.light.bulb", svc.Model())

	mpd := &DeviceService{Kind: ServiceMPD, InstanceName: "Music Player"}
	assert.Empty(t, mpd.Model())
}

func TestEntryToService(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		AddrIPv4: []net.IP{net.ParseIP("192.168.0.40")},
		AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
		HostName: "bulb.local.",
		Port:     54321,
		Text:     []string{"epoch=1"},
	}
	entry.Instance = "philips-light-bulb_miio76334333"

	svc := entryToService(entry, ServiceMiio)
	require.NotNil(t, svc)
	assert.Equal(t, ServiceMiio, svc.Kind)
	assert.Equal(t, "bulb.local.", svc.Host)
	assert.Equal(t, uint16(54321), svc.Port)
	assert.Equal(t, []string{"192.168.0.40", "fe80::1"}, svc.Addresses)
	assert.Equal(t, map[string]string{"epoch": "1"}, svc.Properties)

	assert.Nil(t, entryToService(nil, ServiceMiio))
	assert.Nil(t, entryToService(&zeroconf.ServiceEntry{}, ServiceMiio))
}

func TestMergeAddresses(t *testing.T) {
	merged := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, merged)
}

func TestRemoveAddresses(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		AddrIPv4: []net.IP{net.ParseIP("192.168.0.40")},
	}
	left := removeAddresses([]string{"192.168.0.40", "fe80::1"}, entry)
	assert.Equal(t, []string{"fe80::1"}, left)
}
