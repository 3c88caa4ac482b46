// Package mpd talks to a Music Player Daemon over its TCP line protocol.
//
// Client is the transport: it connects to the daemon on port 6600, reads
// the "OK MPD" banner and exchanges commands for "key: value" response
// lines terminated by OK or ACK. Player sits on top of a Client and
// models the daemon as a media player with playback state, volume,
// mute and playlist selection. Player state polls are throttled; see
// DefaultUpdateThrottle and DefaultPlaylistThrottle.
package mpd
