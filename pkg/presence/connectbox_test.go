package presence

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lanClientsXML = `<?xml version="1.0" encoding="utf-8"?>
<LanUserTable>
  <Ethernet>
    <clientinfo>
      <hostname>nas</hostname>
      <MACAddr>00:11:22:33:44:55</MACAddr>
      <IPv4Addr>192.168.0.2</IPv4Addr>
    </clientinfo>
  </Ethernet>
  <WIFI>
    <clientinfo>
      <hostname>phone</hostname>
      <MACAddr>ab:cd:ef:01:23:45</MACAddr>
      <IPv4Addr>192.168.0.17</IPv4Addr>
    </clientinfo>
    <clientinfo>
      <hostname></hostname>
      <MACAddr>bad-mac</MACAddr>
      <IPv4Addr>---</IPv4Addr>
    </clientinfo>
  </WIFI>
</LanUserTable>`

// fakeConnectBox mimics the router firmware: a token cookie seeded by
// the login page, rotated on login, and checked by the getter.
type fakeConnectBox struct {
	t        *testing.T
	password string
	token    string
	logins   int
}

func (f *fakeConnectBox) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/common_page/login.html", func(w http.ResponseWriter, r *http.Request) {
		f.token = "seed-token"
		http.SetCookie(w, &http.Cookie{Name: "sessionToken", Value: f.token, Path: "/"})
	})
	mux.HandleFunc("/xml/setter.xml", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		if r.PostForm.Get("fun") != fmt.Sprint(fnLogin) {
			http.Error(w, "bad fun", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("Password") != f.password {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		f.logins++
		f.token = "session-token"
		http.SetCookie(w, &http.Cookie{Name: "sessionToken", Value: f.token, Path: "/"})
	})
	mux.HandleFunc("/xml/getter.xml", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		if r.PostForm.Get("token") != f.token || f.token != "session-token" {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		if r.PostForm.Get("fun") == fmt.Sprint(fnLanClients) {
			fmt.Fprint(w, lanClientsXML)
			return
		}
		http.Error(w, "bad fun", http.StatusBadRequest)
	})
	return mux
}

func newTestConnectBox(t *testing.T, password string) (*ConnectBoxScanner, *fakeConnectBox) {
	t.Helper()

	fake := &fakeConnectBox{t: t, password: "secret"}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := server.Client()
	client.Jar = jar

	host := strings.TrimPrefix(server.URL, "http://")
	scanner, err := NewConnectBoxScanner(ConnectBoxConfig{
		Host:     host,
		Password: password,
		Client:   client,
	})
	require.NoError(t, err)
	return scanner, fake
}

func TestNewConnectBoxScannerValidation(t *testing.T) {
	_, err := NewConnectBoxScanner(ConnectBoxConfig{Password: "secret"})
	assert.Error(t, err)

	_, err = NewConnectBoxScanner(ConnectBoxConfig{Host: "192.0.2.1"})
	assert.Error(t, err)
}

func TestConnectBoxScan(t *testing.T) {
	scanner, fake := newTestConnectBox(t, "secret")

	devices, err := scanner.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.logins)

	require.Len(t, devices, 2)
	assert.Equal(t, "00:11:22:33:44:55", devices[0].MAC)
	assert.Equal(t, "nas", devices[0].Name)
	assert.Equal(t, "192.168.0.2", devices[0].IP)
	assert.Equal(t, "AB:CD:EF:01:23:45", devices[1].MAC)
	assert.Equal(t, "phone", devices[1].Name)

	// The session survives; no second login.
	_, err = scanner.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.logins)
}

func TestConnectBoxScanRelogsInAfterExpiry(t *testing.T) {
	scanner, fake := newTestConnectBox(t, "secret")

	_, err := scanner.Scan(context.Background(), nil)
	require.NoError(t, err)

	// Simulate an expired session on the router side.
	fake.token = "rotated-away"
	_, err = scanner.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.logins)
}

func TestConnectBoxBadPassword(t *testing.T) {
	scanner, _ := newTestConnectBox(t, "wrong")

	_, err := scanner.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestConnectBoxTokenHelper(t *testing.T) {
	scanner, _ := newTestConnectBox(t, "secret")
	assert.Empty(t, scanner.token())

	u, err := url.Parse(scanner.base)
	require.NoError(t, err)
	scanner.client.Jar.SetCookies(u, []*http.Cookie{{Name: "sessionToken", Value: "abc"}})
	assert.Equal(t, "abc", scanner.token())
}
