// Package discovery finds smart-home services on the local network via
// mDNS.
//
// Xiaomi miio devices announce themselves as _miio._udp and MPD daemons
// with zeroconf support as _mpd._tcp. Browser watches for either kind
// and aggregates announcements from multiple interfaces into one entry
// per instance.
package discovery
