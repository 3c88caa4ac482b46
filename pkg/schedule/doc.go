// Package schedule implements delayed device actions.
//
// A scheduled action fires once after its delay: "turn the bedroom
// light off in 20 minutes". Timers are tracked per (device, action)
// pair, and a new schedule for the same pair replaces the old one,
// there is no stacking.
//
// Timers are in-memory only. They do not survive a process restart,
// unlike the delayed turn-off that miio bulbs run on-device.
package schedule
