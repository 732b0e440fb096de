// Package light pushes presence to ambient light fixtures: WLED over its
// JSON HTTP API or its MQTT API, and Tasmota-style bulbs over HTTP.
package light

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

// CacheFile is the tracked-device list on the SD card.
const CacheFile = "lights.json"

// Presence activities that select the call preset.
const (
	activityInACall    = "InACall"
	activityInAMeeting = "InAMeeting"
)

// WLED preset slots provisioned on every tracked device.
const (
	PresetAvailable    = 1
	PresetAway         = 2
	PresetBusy         = 3
	PresetDoNotDisturb = 4
	PresetInCall       = 5
	PresetOffline      = 6
)

// Publisher sends raw MQTT messages.
type Publisher interface {
	PublishRaw(topic string, payload []byte, retained bool) error
}

// Device is one tracked fixture.
type Device struct {
	Name        string             `json:"name"`
	Type        settings.LightType `json:"type"`
	Host        string             `json:"ip"`
	Provisioned bool               `json:"provisioned"`
	Responding  bool               `json:"responding"`
}

// Controller drives the configured fixture and any tracked WLED devices.
type Controller struct {
	client    *http.Client
	mqtt      Publisher
	cachePath string
	devices   []Device
}

// NewController returns a Controller. cacheDir is the SD card mount; mqtt
// may be nil when no broker is configured.
func NewController(client *http.Client, mqtt Publisher, cacheDir string) *Controller {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	c := &Controller{client: client, mqtt: mqtt}
	if cacheDir != "" {
		c.cachePath = filepath.Join(cacheDir, CacheFile)
	}
	return c
}

// Devices returns the tracked devices.
func (c *Controller) Devices() []Device {
	return append([]Device(nil), c.devices...)
}

// SetDevices replaces the tracked devices.
func (c *Controller) SetDevices(d []Device) {
	c.devices = append([]Device(nil), d...)
}

// LoadCache reads the tracked devices from the SD card. A missing file is
// an empty list.
func (c *Controller) LoadCache() error {
	if c.cachePath == "" {
		return nil
	}
	data, err := os.ReadFile(c.cachePath)
	if errors.Is(err, os.ErrNotExist) {
		c.devices = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read light cache: %w", err)
	}
	var devices []Device
	if err := json.Unmarshal(data, &devices); err != nil {
		return fmt.Errorf("parse light cache: %w", err)
	}
	c.devices = devices
	log.Printf("light: %d tracked device(s) loaded", len(devices))
	return nil
}

// SaveCache writes the tracked devices to the SD card.
func (c *Controller) SaveCache() error {
	if c.cachePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.devices, "", "  ")
	if err != nil {
		return fmt.Errorf("encode light cache: %w", err)
	}
	if err := os.WriteFile(c.cachePath, data, 0o644); err != nil {
		return fmt.Errorf("write light cache: %w", err)
	}
	return nil
}

// Preset maps an availability or activity to its WLED preset slot.
func Preset(availability string) int {
	switch availability {
	case presence.Available:
		return PresetAvailable
	case presence.Away, presence.BeRightBack:
		return PresetAway
	case presence.Busy:
		return PresetBusy
	case presence.DoNotDisturb:
		return PresetDoNotDisturb
	case activityInACall, activityInAMeeting:
		return PresetInCall
	}
	return PresetOffline
}

// RGB maps an availability to a colour. Offline is black.
func RGB(availability string) (r, g, b uint8) {
	switch availability {
	case presence.Available:
		return 0, 255, 0
	case presence.Busy, presence.DoNotDisturb:
		return 255, 0, 0
	case presence.Away, presence.BeRightBack:
		return 255, 191, 0
	case presence.Offline:
		return 0, 0, 0
	}
	return 80, 80, 80
}

// ApplyPresence shows availability on the configured fixture and selects the
// matching preset on every tracked WLED device.
func (c *Controller) ApplyPresence(cfg settings.LightConfig, availability string) error {
	var errs []error
	if cfg.Enabled() {
		r, g, b := RGB(availability)
		errs = append(errs, c.setColor(cfg, r, g, b))
	}
	errs = append(errs, c.presetAll(Preset(availability)))
	return errors.Join(errs...)
}

// Off turns the configured fixture and tracked devices off.
func (c *Controller) Off(cfg settings.LightConfig) error {
	var errs []error
	if cfg.Enabled() {
		errs = append(errs, c.setColor(cfg, 0, 0, 0))
	}
	for i := range c.devices {
		d := &c.devices[i]
		if d.Type != settings.LightWLED {
			continue
		}
		errs = append(errs, c.track(d, c.wledState(d.Host, map[string]any{"on": false})))
	}
	return errors.Join(errs...)
}

func (c *Controller) setColor(cfg settings.LightConfig, r, g, b uint8) error {
	off := r == 0 && g == 0 && b == 0
	switch cfg.Type {
	case settings.LightWLED:
		state := map[string]any{"on": !off, "bri": cfg.Brightness, "seg": []any{map[string]any{"col": [][]int{{int(r), int(g), int(b)}}}}}
		if off {
			state = map[string]any{"on": false}
		}
		return c.wledState(cfg.Host, state)
	case settings.LightBulb:
		cmd := fmt.Sprintf("Color%%20%02X%02X%02X", r, g, b)
		if off {
			cmd = "Power%20Off"
		}
		return c.get(fmt.Sprintf("http://%s/cm?cmnd=%s", cfg.Host, cmd))
	case settings.LightWLEDMQTT:
		if c.mqtt == nil {
			return fmt.Errorf("light: no MQTT broker for %s", cfg.Topic)
		}
		if off {
			return c.mqtt.PublishRaw(cfg.Topic, []byte("OFF"), false)
		}
		return c.mqtt.PublishRaw(cfg.Topic+"/col", []byte(fmt.Sprintf("#%02X%02X%02X", r, g, b)), false)
	}
	return nil
}

func (c *Controller) presetAll(preset int) error {
	var errs []error
	for i := range c.devices {
		d := &c.devices[i]
		if d.Type != settings.LightWLED || !d.Provisioned {
			continue
		}
		errs = append(errs, c.track(d, c.wledState(d.Host, map[string]any{"ps": preset})))
	}
	return errors.Join(errs...)
}

func (c *Controller) track(d *Device, err error) error {
	d.Responding = err == nil
	if err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	return nil
}

func (c *Controller) wledState(host string, state map[string]any) error {
	body, err := json.Marshal(state)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, "http://"+host+"/json/state", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Controller) get(url string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *Controller) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("light: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("light: %s %s: HTTP %d", req.Method, req.URL.Host, resp.StatusCode)
	}
	return nil
}
