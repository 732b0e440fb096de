// Package status provides a thread-safe view of the device for the HTTP
// status page and MQTT lifecycle snapshots.
package status

import (
	"sync"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
)

// NetworkInfo describes the Wi-Fi link.
type NetworkInfo struct {
	Interface string
	SSID      string
	IP        string
	Connected bool
}

// Config contains device configuration for display.
type Config struct {
	DeviceID     string
	Platform     string
	PollInterval time.Duration
	OfficeHours  string
	Timezone     string
	Broker       string
	HTTPAddr     string
}

// Snapshot is a point-in-time view of device state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         string
	ErrorTitle    string
	ErrorDetail   string
	Availability  string
	Activity      string
	LastPoll      time.Time
	Battery       battery.Reading
	StableCount   int
	Path          string
	ResetReason   string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the process started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable device state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetBoot records how this boot started.
func (t *Tracker) SetBoot(path, resetReason string) {
	t.mu.Lock()
	t.snap.Path = path
	t.snap.ResetReason = resetReason
	t.mu.Unlock()
}

// SetConfig replaces the displayed configuration once settings are loaded.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// SetState records the application state. Title and detail are only kept
// for the error state.
func (t *Tracker) SetState(state, title, detail string) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.ErrorTitle = title
	t.snap.ErrorDetail = detail
	t.mu.Unlock()
}

// SetPresence records a fetched presence value.
func (t *Tracker) SetPresence(availability, activity string, at time.Time, stable int) {
	t.mu.Lock()
	t.snap.Availability = availability
	t.snap.Activity = activity
	t.snap.LastPoll = at
	t.snap.StableCount = stable
	t.mu.Unlock()
}

// SetBattery records the latest battery reading.
func (t *Tracker) SetBattery(r battery.Reading) {
	t.mu.Lock()
	t.snap.Battery = r
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the device state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
