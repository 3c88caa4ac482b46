// Package config loads the hub configuration file.
//
// The file is YAML, listing the lights, the media player and the
// presence tracker the hub should drive, plus logging and event log
// settings. Load applies defaults and validates cross references, so a
// loaded Config is ready to use.
package config
