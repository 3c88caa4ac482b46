// Package presence tracks which devices are on the local network.
//
// A Scanner probes the network and reports the devices it can see.
// Two scanners are provided: ConnectBoxScanner asks a UPC Connect Box
// router for its LAN client table over HTTP, and SSHScanner logs into
// a router over SSH and reads its neighbor table.
//
// Tracker drives a Scanner: sweeps are throttled, devices seen
// recently are skipped to spare their batteries, and home/away
// transitions are written to the event log.
package presence
