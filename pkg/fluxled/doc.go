// Package fluxled controls Flux/Magic Home Wi-Fi LED strip controllers.
//
// These controllers speak a small binary protocol over TCP port 5577:
// fixed-size command frames with a trailing modulo-256 checksum. The package
// implements power control, RGB(W) color writes, the built-in effect
// patterns, custom color patterns, and the state query, for both the current
// checksummed protocol and the legacy one spoken by first-generation
// controllers.
//
// Controllers on the LAN can be located with Scan, which probes the
// UDP discovery port with the vendor magic string.
//
// The Light type wraps a Bulb with the bookkeeping a long-running
// application needs: lazy connection, warn-once error reporting, and a
// throttled Update so state polling cannot flood the device.
package fluxled
