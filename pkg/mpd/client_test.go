package mpd

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon speaks the MPD line protocol on one end of a pipe.
type fakeDaemon struct {
	conn      net.Conn
	banner    string
	responses map[string][]string
	acks      map[string]string
}

func (d *fakeDaemon) serve() {
	if _, err := io.WriteString(d.conn, d.banner+"\n"); err != nil {
		return
	}

	reader := bufio.NewReader(d.conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\n")

		if ack, ok := d.acks[cmd]; ok {
			if _, err := io.WriteString(d.conn, ack+"\n"); err != nil {
				return
			}
			continue
		}
		for _, resp := range d.responses[cmd] {
			if _, err := io.WriteString(d.conn, resp+"\n"); err != nil {
				return
			}
		}
		if _, err := io.WriteString(d.conn, "OK\n"); err != nil {
			return
		}
	}
}

func newTestDaemonClient(t *testing.T, daemon *fakeDaemon) *Client {
	t.Helper()

	clientSide, daemonSide := net.Pipe()
	t.Cleanup(func() {
		clientSide.Close()
		daemonSide.Close()
	})

	daemon.conn = daemonSide
	if daemon.banner == "" {
		daemon.banner = "OK MPD 0.23.5"
	}
	go daemon.serve()

	client, err := NewClient(ClientConfig{
		Addr:    "192.0.2.30",
		Timeout: time.Second,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return clientSide, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)

	client, err := NewClient(ClientConfig{Addr: "192.0.2.30"})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.30:6600", client.Addr())
}

func TestClientCommand(t *testing.T) {
	client := newTestDaemonClient(t, &fakeDaemon{
		responses: map[string][]string{
			"status": {"volume: 80", "state: play", "song: 3"},
		},
	})

	attrs, err := client.Command(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"volume": "80",
		"state":  "play",
		"song":   "3",
	}, attrs)
	assert.Equal(t, "0.23.5", client.Version())
}

func TestClientCommandValues(t *testing.T) {
	client := newTestDaemonClient(t, &fakeDaemon{
		responses: map[string][]string{
			"listplaylists": {
				"playlist: morning",
				"Last-Modified: 2024-03-01T12:00:00Z",
				"playlist: evening",
				"Last-Modified: 2024-03-02T12:00:00Z",
			},
		},
	})

	names, err := client.CommandValues(context.Background(), "listplaylists", "playlist")
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", "evening"}, names)
}

func TestClientACK(t *testing.T) {
	client := newTestDaemonClient(t, &fakeDaemon{
		acks: map[string]string{
			"bogus": `ACK [5@0] {} unknown command "bogus"`,
		},
	})

	_, err := client.Command(context.Background(), "bogus")
	var ack *ACKError
	require.ErrorAs(t, err, &ack)
	assert.Equal(t, 5, ack.Code)
	assert.Equal(t, `unknown command "bogus"`, ack.Message)

	// The connection stays usable after a protocol error.
	require.NoError(t, client.Ping(context.Background()))
}

func TestClientBadBanner(t *testing.T) {
	client := newTestDaemonClient(t, &fakeDaemon{banner: "HELLO"})

	_, err := client.Command(context.Background(), "status")
	assert.ErrorIs(t, err, ErrBadBanner)
}

func TestParseACK(t *testing.T) {
	err := parseACK(`ACK [50@1] {load} No such playlist`)
	var ack *ACKError
	require.ErrorAs(t, err, &ack)
	assert.Equal(t, 50, ack.Code)
	assert.Equal(t, 1, ack.Index)
	assert.Equal(t, "load", ack.Command)
	assert.Equal(t, "No such playlist", ack.Message)

	err = parseACK("ACK mangled")
	require.ErrorAs(t, err, &ack)
	assert.Equal(t, "ACK mangled", ack.Message)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"morning"`, quote("morning"))
	assert.Equal(t, `"say \"hi\""`, quote(`say "hi"`))
	assert.Equal(t, `"a\\b"`, quote(`a\b`))
}
