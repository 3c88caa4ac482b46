package mpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adrianalin/home-assistant-series/pkg/eventlog"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

// State is the playback state of a Player.
type State uint8

const (
	// StateOff means the daemon is stopped or unreachable.
	StateOff State = iota

	// StatePlaying means a song is playing.
	StatePlaying

	// StatePaused means playback is paused.
	StatePaused
)

// String implements the Stringer interface.
func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// MediaType selects what PlayMedia loads.
type MediaType uint8

const (
	// MediaTypeMusic plays a single file or stream URL.
	MediaTypeMusic MediaType = iota

	// MediaTypePlaylist loads a stored playlist.
	MediaTypePlaylist
)

// Poll throttles. The forced limit on DefaultUpdateThrottle keeps
// post-command refreshes from hammering the daemon.
var (
	DefaultUpdateThrottle   = throttle.NewWithForcedLimit(10*time.Second, time.Second)
	DefaultPlaylistThrottle = throttle.New(2 * time.Minute)
)

// ErrUnknownMediaType is returned by PlayMedia for media types it cannot
// load.
var ErrUnknownMediaType = errors.New("mpd: unknown media type")

// Commander runs MPD commands. *Client implements it.
type Commander interface {
	Command(ctx context.Context, cmd string) (map[string]string, error)
	CommandValues(ctx context.Context, cmd, key string) ([]string, error)
}

// playerState is one snapshot of the daemon.
type playerState struct {
	state  State
	title  string
	artist string
	volume float64
}

// PlayerConfig configures a Player.
type PlayerConfig struct {
	// Name is the display name.
	Name string

	// Addr is the daemon address recorded in events. Informational; the
	// transport carries its own address.
	Addr string

	// UpdateThrottle overrides DefaultUpdateThrottle.
	UpdateThrottle *throttle.Definition

	// PlaylistThrottle overrides DefaultPlaylistThrottle.
	PlaylistThrottle *throttle.Definition

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Events receives device events. Defaults to eventlog.NoopLogger.
	Events eventlog.Logger
}

// Player models an MPD daemon as a media player.
type Player struct {
	name   string
	addr   string
	client Commander
	logger *slog.Logger
	events eventlog.Logger

	throttle  throttle.Registry
	update    *throttle.Wrapped[playerState]
	playlists *throttle.Wrapped[[]string]

	mu          sync.Mutex
	state       playerState
	muted       bool
	savedVolume float64
	sources     []string
	available   bool
}

// NewPlayer creates a Player on top of the given transport.
func NewPlayer(client Commander, cfg PlayerConfig) (*Player, error) {
	if client == nil {
		return nil, errors.New("mpd: client must not be nil")
	}
	if cfg.Name == "" {
		return nil, errors.New("mpd: player name must not be empty")
	}

	p := &Player{
		name:   cfg.Name,
		addr:   cfg.Addr,
		client: client,
		logger: cfg.Logger,
		events: cfg.Events,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.events == nil {
		p.events = eventlog.NoopLogger{}
	}

	updateDef := cfg.UpdateThrottle
	if updateDef == nil {
		updateDef = DefaultUpdateThrottle
	}
	playlistDef := cfg.PlaylistThrottle
	if playlistDef == nil {
		playlistDef = DefaultPlaylistThrottle
	}

	update, err := throttle.Wrap(updateDef, &p.throttle, p.refresh)
	if err != nil {
		return nil, err
	}
	playlists, err := throttle.Wrap(playlistDef, &p.throttle, p.refreshPlaylists)
	if err != nil {
		return nil, err
	}
	p.update = update
	p.playlists = playlists

	return p, nil
}

// Name returns the display name.
func (p *Player) Name() string {
	return p.name
}

// Available reports whether the last poll or command reached the daemon.
func (p *Player) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// State returns the playback state from the last update.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.state
}

// MediaTitle returns "artist - title" for the current song, or just the
// title for untagged media.
func (p *Player) MediaTitle() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.artist != "" && p.state.title != "" {
		return p.state.artist + " - " + p.state.title
	}
	return p.state.title
}

// Volume returns the volume level in [0, 1] from the last update.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.volume
}

// Muted reports whether the volume was muted through Mute.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Sources returns the stored playlist names from the last playlist
// update.
func (p *Player) Sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sources...)
}

// Update polls the daemon for playback state. Calls are throttled; pass
// throttle.Force() to bypass the interval.
func (p *Player) Update(ctx context.Context, opts ...throttle.CallOption) error {
	_, err := p.update.Call(ctx, opts...)
	return err
}

// UpdatePlaylists refreshes the stored playlist names. Polls are
// throttled independently of Update, on a longer interval.
func (p *Player) UpdatePlaylists(ctx context.Context, opts ...throttle.CallOption) error {
	_, err := p.playlists.Call(ctx, opts...)
	return err
}

func (p *Player) refresh(ctx context.Context) (playerState, error) {
	status, err := p.client.Command(ctx, "status")
	if err != nil {
		p.setAvailable(false)
		p.logger.Warn("failed to fetch player state", "player", p.name, "err", err)
		return playerState{}, err
	}
	song, err := p.client.Command(ctx, "currentsong")
	if err != nil {
		p.setAvailable(false)
		return playerState{}, err
	}

	next := playerState{
		title:  song["Title"],
		artist: song["Artist"],
	}
	switch status["state"] {
	case "play":
		next.state = StatePlaying
	case "pause":
		next.state = StatePaused
	default:
		next.state = StateOff
	}
	if vol, err := strconv.Atoi(status["volume"]); err == nil && vol >= 0 {
		next.volume = float64(vol) / 100
	}

	p.mu.Lock()
	old := p.state.state
	p.state = next
	p.available = true
	p.mu.Unlock()

	if old != next.state {
		ev := eventlog.NewEvent(eventlog.CategoryState, eventlog.KindMPD, p.name, p.addr)
		ev.StateChange = &eventlog.StateChangeEvent{
			Attribute: "state",
			OldState:  old.String(),
			NewState:  next.state.String(),
		}
		p.events.Log(ev)
	}

	p.logger.Debug("player state", "player", p.name, "state", next.state,
		"title", next.title, "volume", next.volume)
	return next, nil
}

func (p *Player) refreshPlaylists(ctx context.Context) ([]string, error) {
	names, err := p.client.CommandValues(ctx, "listplaylists", "playlist")
	if err != nil {
		p.setAvailable(false)
		return nil, err
	}

	p.mu.Lock()
	p.sources = names
	p.available = true
	p.mu.Unlock()
	return names, nil
}

// Play starts or resumes playback.
func (p *Player) Play(ctx context.Context) error {
	err := p.command(ctx, "play", nil)
	if err == nil {
		p.setState(StatePlaying)
	}
	return err
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	err := p.command(ctx, "pause 1", nil)
	if err == nil {
		p.setState(StatePaused)
	}
	return err
}

// Stop stops playback.
func (p *Player) Stop(ctx context.Context) error {
	err := p.command(ctx, "stop", nil)
	if err == nil {
		p.setState(StateOff)
	}
	return err
}

// Next skips to the next song.
func (p *Player) Next(ctx context.Context) error {
	return p.command(ctx, "next", nil)
}

// Previous skips to the previous song.
func (p *Player) Previous(ctx context.Context) error {
	return p.command(ctx, "previous", nil)
}

// SetVolume sets the volume level, clamped to [0, 1].
func (p *Player) SetVolume(ctx context.Context, level float64) error {
	vol := int(math.Round(math.Min(math.Max(level, 0), 1) * 100))
	err := p.command(ctx, fmt.Sprintf("setvol %d", vol),
		map[string]string{"volume": strconv.Itoa(vol)})
	if err == nil {
		p.mu.Lock()
		p.state.volume = float64(vol) / 100
		p.mu.Unlock()
	}
	return err
}

// Mute silences the player, remembering the level so unmuting restores
// it.
func (p *Player) Mute(ctx context.Context, mute bool) error {
	p.mu.Lock()
	if mute == p.muted {
		p.mu.Unlock()
		return nil
	}
	level := p.savedVolume
	if mute {
		p.savedVolume = p.state.volume
		level = 0
	}
	p.mu.Unlock()

	if err := p.SetVolume(ctx, level); err != nil {
		return err
	}
	p.mu.Lock()
	p.muted = mute
	p.mu.Unlock()
	return nil
}

// PlayMedia replaces the queue with the given media and starts playback.
func (p *Player) PlayMedia(ctx context.Context, mediaType MediaType, id string) error {
	var load string
	switch mediaType {
	case MediaTypeMusic:
		load = "add " + quote(id)
	case MediaTypePlaylist:
		load = "load " + quote(id)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMediaType, mediaType)
	}

	if err := p.command(ctx, "clear", nil); err != nil {
		return err
	}
	if err := p.command(ctx, load, map[string]string{"id": id}); err != nil {
		return err
	}
	return p.Play(ctx)
}

// Playlist returns the files of one stored playlist.
func (p *Player) Playlist(ctx context.Context, name string) ([]string, error) {
	files, err := p.client.CommandValues(ctx, "listplaylist "+quote(name), "file")
	if err != nil {
		p.setAvailable(false)
		return nil, err
	}
	p.setAvailable(true)
	return files, nil
}

// command runs one control command and records it in the event log.
func (p *Player) command(ctx context.Context, cmd string, args map[string]string) error {
	start := time.Now()
	_, err := p.client.Command(ctx, cmd)

	name, _, _ := strings.Cut(cmd, " ")
	ev := eventlog.NewEvent(eventlog.CategoryCommand, eventlog.KindMPD, p.name, p.addr)
	ev.Command = &eventlog.CommandEvent{
		Name:     name,
		Args:     args,
		Duration: time.Since(start),
		OK:       err == nil,
	}
	p.events.Log(ev)

	if err != nil {
		p.setAvailable(false)
		p.logger.Warn("player command failed", "player", p.name, "command", cmd, "err", err)
		return err
	}
	p.setAvailable(true)
	return nil
}

func (p *Player) setAvailable(v bool) {
	p.mu.Lock()
	p.available = v
	p.mu.Unlock()
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state.state = s
	p.mu.Unlock()
}
