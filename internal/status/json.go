package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Error         *ErrorJSON   `json:"error,omitempty"`
	Presence      PresenceJSON `json:"presence"`
	Battery       BatteryJSON  `json:"battery"`
	Boot          BootJSON     `json:"boot"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ErrorJSON is the error screen text.
type ErrorJSON struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// PresenceJSON is the last fetched presence.
type PresenceJSON struct {
	Availability string `json:"availability"`
	Activity     string `json:"activity,omitempty"`
	LastPoll     string `json:"last_poll,omitempty"`
	StableCount  int    `json:"stable_count"`
}

// BatteryJSON is the last battery reading.
type BatteryJSON struct {
	Volts   float64 `json:"volts"`
	Percent int     `json:"percent"`
	Level   string  `json:"level"`
}

// BootJSON describes how the current boot started.
type BootJSON struct {
	Path        string `json:"path"`
	ResetReason string `json:"reset_reason"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Interface string `json:"interface"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
	Connected bool   `json:"connected"`
}

// ConfigJSON is the JSON representation of device config.
type ConfigJSON struct {
	DeviceID        string `json:"device_id"`
	Platform        string `json:"platform"`
	PollIntervalSec int64  `json:"poll_interval_sec"`
	OfficeHours     string `json:"office_hours"`
	Timezone        string `json:"timezone,omitempty"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State: orUnknown(snap.State),
		Presence: PresenceJSON{
			Availability: orUnknown(snap.Availability),
			Activity:     snap.Activity,
			StableCount:  snap.StableCount,
		},
		Battery: BatteryJSON{
			Volts:   snap.Battery.Volts,
			Percent: snap.Battery.Percent,
			Level:   orUnknown(string(snap.Battery.Level)),
		},
		Boot:          BootJSON{Path: orUnknown(snap.Path), ResetReason: orUnknown(snap.ResetReason)},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			DeviceID:        snap.Config.DeviceID,
			Platform:        snap.Config.Platform,
			PollIntervalSec: int64(snap.Config.PollInterval / time.Second),
			OfficeHours:     snap.Config.OfficeHours,
			Timezone:        snap.Config.Timezone,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if !snap.LastPoll.IsZero() {
		inner.Presence.LastPoll = snap.LastPoll.UTC().Format(time.RFC3339)
	}
	if snap.ErrorTitle != "" {
		inner.Error = &ErrorJSON{Title: snap.ErrorTitle, Detail: snap.ErrorDetail}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Interface: snap.Network.Interface,
			SSID:      snap.Network.SSID,
			IP:        snap.Network.IP,
			Connected: snap.Network.Connected,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
