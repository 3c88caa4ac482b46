package mpd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// fakeCommander records commands and serves canned responses.
type fakeCommander struct {
	mu     sync.Mutex
	cmds   []string
	attrs  map[string]map[string]string
	values map[string][]string
	err    error
}

func (f *fakeCommander) Command(ctx context.Context, cmd string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	if attrs, ok := f.attrs[cmd]; ok {
		return attrs, nil
	}
	return map[string]string{}, nil
}

func (f *fakeCommander) CommandValues(ctx context.Context, cmd, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return f.values[cmd], nil
}

func (f *fakeCommander) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeCommander) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func newTestPlayer(t *testing.T, commander *fakeCommander, opts ...func(*PlayerConfig)) *Player {
	t.Helper()

	cfg := PlayerConfig{
		Name:   "living room",
		Addr:   "192.0.2.30",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	player, err := NewPlayer(commander, cfg)
	require.NoError(t, err)
	return player
}

func playingCommander() *fakeCommander {
	return &fakeCommander{
		attrs: map[string]map[string]string{
			"status":      {"state": "play", "volume": "80"},
			"currentsong": {"Title": "So What", "Artist": "Miles Davis"},
		},
	}
}

func TestNewPlayerValidation(t *testing.T) {
	_, err := NewPlayer(nil, PlayerConfig{Name: "x"})
	assert.Error(t, err)

	_, err = NewPlayer(&fakeCommander{}, PlayerConfig{})
	assert.Error(t, err)
}

func TestPlayerUpdate(t *testing.T) {
	commander := playingCommander()
	player := newTestPlayer(t, commander)

	require.NoError(t, player.Update(context.Background()))
	assert.Equal(t, StatePlaying, player.State())
	assert.Equal(t, "Miles Davis - So What", player.MediaTitle())
	assert.InDelta(t, 0.8, player.Volume(), 0.001)
	assert.True(t, player.Available())
}

func TestPlayerUpdateThrottled(t *testing.T) {
	commander := playingCommander()
	player := newTestPlayer(t, commander)

	require.NoError(t, player.Update(context.Background()))
	require.NoError(t, player.Update(context.Background()))
	require.NoError(t, player.Update(context.Background()))
	assert.Equal(t, 1, commander.count("status"))
}

func TestPlayerForcedUpdateLimited(t *testing.T) {
	commander := playingCommander()
	player := newTestPlayer(t, commander, func(cfg *PlayerConfig) {
		cfg.UpdateThrottle = throttle.NewWithForcedLimit(time.Hour, 50*time.Millisecond)
	})

	require.NoError(t, player.Update(context.Background()))
	require.NoError(t, player.Update(context.Background(), throttle.Force()))
	assert.Equal(t, 1, commander.count("status"))

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, player.Update(context.Background(), throttle.Force()))
	assert.Equal(t, 2, commander.count("status"))
}

func TestPlayerPlaylistsThrottledIndependently(t *testing.T) {
	commander := playingCommander()
	commander.values = map[string][]string{
		"listplaylists": {"morning", "evening"},
	}
	player := newTestPlayer(t, commander)

	require.NoError(t, player.Update(context.Background()))
	require.NoError(t, player.UpdatePlaylists(context.Background()))
	assert.Equal(t, []string{"morning", "evening"}, player.Sources())

	require.NoError(t, player.UpdatePlaylists(context.Background()))
	assert.Equal(t, 1, commander.count("listplaylists"))
	assert.Equal(t, 1, commander.count("status"))
}

func TestPlayerUpdateFailure(t *testing.T) {
	commander := &fakeCommander{err: errors.New("connection refused")}
	player := newTestPlayer(t, commander)

	assert.Error(t, player.Update(context.Background()))
	assert.False(t, player.Available())
	assert.Equal(t, StateOff, player.State())
}

func TestPlayerControls(t *testing.T) {
	commander := &fakeCommander{}
	player := newTestPlayer(t, commander)

	require.NoError(t, player.Play(context.Background()))
	assert.Equal(t, StatePlaying, player.State())

	require.NoError(t, player.Pause(context.Background()))
	assert.Equal(t, StatePaused, player.State())

	require.NoError(t, player.Stop(context.Background()))
	assert.Equal(t, StateOff, player.State())

	require.NoError(t, player.Next(context.Background()))
	require.NoError(t, player.Previous(context.Background()))
	assert.Equal(t, []string{"play", "pause 1", "stop", "next", "previous"}, commander.commands())
}

func TestPlayerSetVolume(t *testing.T) {
	commander := &fakeCommander{}
	player := newTestPlayer(t, commander)

	require.NoError(t, player.SetVolume(context.Background(), 0.66))
	assert.Equal(t, []string{"setvol 66"}, commander.commands())
	assert.InDelta(t, 0.66, player.Volume(), 0.001)

	require.NoError(t, player.SetVolume(context.Background(), 1.5))
	assert.Equal(t, "setvol 100", commander.commands()[1])
}

func TestPlayerMute(t *testing.T) {
	commander := playingCommander()
	player := newTestPlayer(t, commander)
	require.NoError(t, player.Update(context.Background()))

	require.NoError(t, player.Mute(context.Background(), true))
	assert.True(t, player.Muted())
	assert.Zero(t, player.Volume())
	assert.Equal(t, 1, commander.count("setvol 0"))

	require.NoError(t, player.Mute(context.Background(), false))
	assert.False(t, player.Muted())
	assert.InDelta(t, 0.8, player.Volume(), 0.001)
	assert.Equal(t, 1, commander.count("setvol 80"))

	// Unmuting twice is a no-op.
	require.NoError(t, player.Mute(context.Background(), false))
	assert.Equal(t, 1, commander.count("setvol 80"))
}

func TestPlayerPlayMedia(t *testing.T) {
	commander := &fakeCommander{}
	player := newTestPlayer(t, commander)

	require.NoError(t, player.PlayMedia(context.Background(), MediaTypePlaylist, "morning"))
	assert.Equal(t, []string{"clear", `load "morning"`, "play"}, commander.commands())

	commander.mu.Lock()
	commander.cmds = nil
	commander.mu.Unlock()

	require.NoError(t, player.PlayMedia(context.Background(), MediaTypeMusic, "song.mp3"))
	assert.Equal(t, []string{"clear", `add "song.mp3"`, "play"}, commander.commands())

	err := player.PlayMedia(context.Background(), MediaType(99), "x")
	assert.ErrorIs(t, err, ErrUnknownMediaType)
}

func TestPlayerPlaylist(t *testing.T) {
	commander := &fakeCommander{values: map[string][]string{
		`listplaylist "morning"`: {"a.mp3", "b.mp3"},
	}}
	player := newTestPlayer(t, commander)

	files, err := player.Playlist(context.Background(), "morning")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, files)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "off", StateOff.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(9).String())
}
