// Package settings holds the device configuration and network/platform
// credentials, and the stores that persist them: a YAML file on the SD card
// and an SQLite-backed key/value store standing in for on-chip NVS.
package settings

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/schedule"
	"gopkg.in/yaml.v3"
)

// Presence poll interval bounds, in seconds.
const (
	DefaultInterval = 120
	MinInterval     = 10
)

// ErrNoCredentials is returned when no network credentials have been provisioned.
var ErrNoCredentials = errors.New("settings: no stored credentials")

// Platform selects the auth flow and presence API.
type Platform int

const (
	PlatformTeams Platform = iota
	PlatformZoom
)

func (p Platform) String() string {
	switch p {
	case PlatformZoom:
		return "zoom"
	default:
		return "teams"
	}
}

// ParsePlatform accepts "teams"/"zoom" or the numeric selector "0"/"1".
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "teams", "0":
		return PlatformTeams, nil
	case "zoom", "1":
		return PlatformZoom, nil
	}
	return PlatformTeams, fmt.Errorf("settings: unknown platform %q", s)
}

// MarshalYAML writes the platform as its name.
func (p Platform) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML reads the platform from its name.
func (p *Platform) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParsePlatform(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// LightType selects how presence reaches a light fixture.
type LightType string

const (
	LightNone     LightType = ""
	LightWLED     LightType = "wled"
	LightBulb     LightType = "bulb"
	LightWLEDMQTT LightType = "wled-mqtt"
)

// LightConfig describes the primary light fixture.
type LightConfig struct {
	Type       LightType `yaml:"type"`
	Host       string    `yaml:"host"`
	Brightness int       `yaml:"brightness"`
	// Topic is the WLED MQTT device topic, used with LightWLEDMQTT.
	Topic string `yaml:"topic,omitempty"`
}

// Enabled reports whether a fixture is configured.
func (c LightConfig) Enabled() bool {
	if c.Type == LightWLEDMQTT {
		return c.Topic != ""
	}
	return c.Type != LightNone && c.Host != ""
}

// Settings is the device configuration loaded once at boot.
type Settings struct {
	Platform         Platform          `yaml:"platform"`
	InvertDisplay    bool              `yaml:"invert_display"`
	AudioAlerts      bool              `yaml:"audio_alerts"`
	PresenceInterval int               `yaml:"presence_interval"`
	FullRefreshEvery int               `yaml:"full_refresh_every"`
	Timezone         string            `yaml:"timezone"`
	OfficeHours      schedule.Schedule `yaml:"office_hours"`
	Light            LightConfig       `yaml:"light"`
}

// Default returns the factory settings.
func Default() Settings {
	return Settings{
		Platform:         PlatformTeams,
		PresenceInterval: DefaultInterval,
		FullRefreshEvery: 10,
		OfficeHours:      schedule.Default(),
		Light:            LightConfig{Brightness: 128},
	}
}

// Normalize clamps out-of-range fields back to usable values.
func (s *Settings) Normalize() {
	if s.PresenceInterval < MinInterval {
		log.Printf("settings: presence interval %ds below minimum, using %ds", s.PresenceInterval, MinInterval)
		s.PresenceInterval = MinInterval
	}
	if s.FullRefreshEvery <= 0 {
		s.FullRefreshEvery = 10
	}
	if s.Light.Brightness <= 0 || s.Light.Brightness > 255 {
		s.Light.Brightness = 128
	}
	if err := s.OfficeHours.Validate(); err != nil {
		log.Printf("settings: %v, office hours disabled", err)
		s.OfficeHours = schedule.Default()
	}
}

// Interval returns the presence poll interval.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.PresenceInterval) * time.Second
}

// Location returns the configured timezone, or UTC when unset or unknown.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		log.Printf("settings: unknown timezone %q, using UTC", s.Timezone)
		return time.UTC
	}
	return loc
}

// Credentials are the provisioned network and platform secrets.
type Credentials struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	// TenantID is the Azure tenant for Teams, or the account id for Zoom.
	TenantID     string      `yaml:"tenant_id"`
	ClientSecret string      `yaml:"client_secret,omitempty"`
	Platform     Platform    `yaml:"platform"`
	Light        LightConfig `yaml:"light"`
}

// Valid reports whether the credentials carry a network to join.
func (c Credentials) Valid() bool {
	return c.SSID != ""
}
