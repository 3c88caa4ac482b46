// Package hub assembles the configured devices into one runtime.
//
// New takes a config.Config and builds the lights, the media player
// and the presence tracker behind it, wiring every device to the same
// event log. The hub is what the commands drive: homectl exposes it on
// an interactive shell, presenced runs its presence tracker as a
// daemon.
package hub
