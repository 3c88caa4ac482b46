// Package miio talks to Xiaomi miio devices over their UDP protocol.
//
// The protocol exchanges 32-byte-headed binary packets on UDP port 54321.
// A hello handshake yields the device ID and clock stamp; subsequent
// packets carry AES-128-CBC encrypted JSON-RPC payloads, keyed by the
// 16-byte device token, and are authenticated with an MD5 digest over
// header, token and ciphertext.
//
// Client implements the transport: handshake, request/response matching
// by JSON-RPC id, per-call timeout with one retry.
//
// PhilipsBulb models the Xiaomi Philips smart bulb on top of Client:
// power, brightness, color temperature, scenes and delayed turn-off,
// with a throttled Update that caches the last known state.
package miio
