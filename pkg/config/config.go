package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Light types.
const (
	LightTypeFluxLED = "fluxled"
	LightTypeMiio    = "miio"
)

// Presence scanner types.
const (
	ScannerTypeConnectBox = "connectbox"
	ScannerTypeSSH        = "ssh"
)

// Validation errors.
var (
	ErrUnknownLightType   = errors.New("config: unknown light type")
	ErrUnknownScannerType = errors.New("config: unknown scanner type")
	ErrDuplicateName      = errors.New("config: duplicate device name")
)

// Duration wraps time.Duration with YAML support for values like "12s"
// or "10m".
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the hub configuration.
type Config struct {
	// LogLevel is debug, info, warn or error. Default: info.
	LogLevel string `yaml:"log_level"`

	// EventLog is the event log file path. Empty disables event
	// logging.
	EventLog string `yaml:"event_log"`

	// Lights are the lights to drive.
	Lights []Light `yaml:"lights"`

	// MPD is the media player, optional.
	MPD *MPD `yaml:"mpd"`

	// Presence is the presence tracker, optional.
	Presence *Presence `yaml:"presence"`
}

// Light configures one light.
type Light struct {
	// Name is the display name, unique across devices.
	Name string `yaml:"name"`

	// Type is fluxled or miio.
	Type string `yaml:"type"`

	// Address is the device address, host or host:port.
	Address string `yaml:"address"`

	// Token is the miio device token. Required for miio lights.
	Token string `yaml:"token"`

	// Mode overrides mode detection for fluxled lights: rgb, rgbw or w.
	Mode string `yaml:"mode"`

	// UpdateInterval overrides the state poll throttle.
	UpdateInterval Duration `yaml:"update_interval"`

	// CustomEffect is the pattern played by the custom effect, fluxled
	// only.
	CustomEffect *CustomEffect `yaml:"custom_effect"`
}

// CustomEffect configures the fluxled custom pattern.
type CustomEffect struct {
	// Colors are the RGB stops of the pattern.
	Colors [][3]uint8 `yaml:"colors"`

	// Speed is the playback speed in percent, 1-100.
	Speed int `yaml:"speed"`

	// Transition is gradual, jump or strobe. Default: gradual.
	Transition string `yaml:"transition"`
}

// MPD configures the media player.
type MPD struct {
	// Name is the display name, unique across devices.
	Name string `yaml:"name"`

	// Address is the daemon address, host or host:port.
	Address string `yaml:"address"`

	// UpdateInterval overrides the state poll throttle.
	UpdateInterval Duration `yaml:"update_interval"`
}

// Presence configures the presence tracker.
type Presence struct {
	// Scanner is connectbox or ssh.
	Scanner string `yaml:"scanner"`

	// Host is the router address.
	Host string `yaml:"host"`

	// User is the SSH user. SSH scanner only.
	User string `yaml:"user"`

	// Password authenticates against the router.
	Password string `yaml:"password"`

	// Command overrides the neighbor table command. SSH scanner only.
	Command string `yaml:"command"`

	// Interval is the sweep interval. Default: 12s.
	Interval Duration `yaml:"interval"`

	// HomeInterval skips re-probing devices seen within it.
	HomeInterval Duration `yaml:"home_interval"`

	// ConsiderHome is how long a device stays home after its last
	// sighting. Default: 3m.
	ConsiderHome Duration `yaml:"consider_home"`

	// Exclude lists IPs never probed.
	Exclude []string `yaml:"exclude"`

	// KnownDevices is the device registry path. Default:
	// known_devices.yaml.
	KnownDevices string `yaml:"known_devices"`
}

// Default values.
const (
	DefaultLogLevel         = "info"
	DefaultPresenceInterval = 12 * time.Second
	DefaultKnownDevices     = "known_devices.yaml"
)

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates configuration bytes. Unknown keys are
// rejected; typos in a config silently ignored are worse than a load
// error.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Presence != nil {
		if c.Presence.Interval <= 0 {
			c.Presence.Interval = Duration(DefaultPresenceInterval)
		}
		if c.Presence.KnownDevices == "" {
			c.Presence.KnownDevices = DefaultKnownDevices
		}
	}
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}

	names := map[string]bool{}
	claim := func(name string) error {
		if name == "" {
			return errors.New("config: device name must not be empty")
		}
		if names[name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		names[name] = true
		return nil
	}

	for i, light := range c.Lights {
		if err := claim(light.Name); err != nil {
			return err
		}
		if light.Address == "" {
			return fmt.Errorf("config: light %q has no address", light.Name)
		}
		switch light.Type {
		case LightTypeFluxLED:
		case LightTypeMiio:
			if light.Token == "" {
				return fmt.Errorf("config: miio light %q has no token", light.Name)
			}
		default:
			return fmt.Errorf("%w: %q (light %d)", ErrUnknownLightType, light.Type, i)
		}
		if effect := light.CustomEffect; effect != nil {
			if len(effect.Colors) == 0 {
				return fmt.Errorf("config: light %q custom effect has no colors", light.Name)
			}
			if effect.Speed < 1 || effect.Speed > 100 {
				return fmt.Errorf("config: light %q custom effect speed %d out of range", light.Name, effect.Speed)
			}
		}
	}

	if c.MPD != nil {
		if err := claim(c.MPD.Name); err != nil {
			return err
		}
		if c.MPD.Address == "" {
			return fmt.Errorf("config: mpd %q has no address", c.MPD.Name)
		}
	}

	if p := c.Presence; p != nil {
		if p.Host == "" {
			return errors.New("config: presence tracker has no host")
		}
		switch p.Scanner {
		case ScannerTypeConnectBox:
			if p.Password == "" {
				return errors.New("config: connectbox scanner has no password")
			}
		case ScannerTypeSSH:
			if p.User == "" {
				return errors.New("config: ssh scanner has no user")
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownScannerType, p.Scanner)
		}
	}

	return nil
}
