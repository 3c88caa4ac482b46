package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSSHScannerValidation(t *testing.T) {
	_, err := NewSSHScanner(SSHConfig{User: "admin"})
	assert.Error(t, err)

	_, err = NewSSHScanner(SSHConfig{Addr: "192.0.2.1"})
	assert.Error(t, err)

	scanner, err := NewSSHScanner(SSHConfig{Addr: "192.0.2.1", User: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1:22", scanner.addr)
	assert.Equal(t, DefaultNeighborCommand, scanner.command)
}

func TestParseNeighbors(t *testing.T) {
	now := time.Now()
	output := `192.168.0.17 dev br0 lladdr ab:cd:ef:01:23:45 REACHABLE
192.168.0.23 dev br0 lladdr 00:11:22:33:44:55 STALE
192.168.0.99 dev br0 FAILED
192.168.0.42 dev br0 lladdr 66:77:88:99:aa:bb INCOMPLETE
fe80::1 dev br0 lladdr cc:dd:ee:ff:00:11 router REACHABLE
garbage line
`

	devices := parseNeighbors(output, now)
	require.Len(t, devices, 3)

	assert.Equal(t, "AB:CD:EF:01:23:45", devices[0].MAC)
	assert.Equal(t, "192.168.0.17", devices[0].IP)
	assert.Equal(t, now, devices[0].LastSeen)

	assert.Equal(t, "00:11:22:33:44:55", devices[1].MAC)
	assert.Equal(t, "CC:DD:EE:FF:00:11", devices[2].MAC)
	assert.Equal(t, "fe80::1", devices[2].IP)
}

func TestParseNeighborsEmpty(t *testing.T) {
	assert.Empty(t, parseNeighbors("", time.Now()))
}
