// Package mqtt publishes presence changes and device lifecycle events, and
// carries raw messages for MQTT-controlled lights.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicPrefix is the root of every topic this device publishes.
const TopicPrefix = "status-pod"

// PresenceTopic is where rendered presence changes are published.
func PresenceTopic(deviceID string) string {
	return TopicPrefix + "/" + deviceID + "/presence"
}

// SystemTopic is where lifecycle events are published.
func SystemTopic(deviceID string) string {
	return TopicPrefix + "/" + deviceID + "/system"
}

// Lifecycle event names.
const (
	EventBoot      = "BOOT"
	EventRunning   = "RUNNING"
	EventError     = "ERROR"
	EventDeepSleep = "DEEP_SLEEP"
	EventPowerOff  = "POWER_OFF"
	EventRestart   = "RESTART"
	EventOffline   = "OFFLINE"
)

// Publisher publishes device events.
type Publisher interface {
	// PublishPresence sends a presence change. Failures must not affect
	// device state.
	PublishPresence(event PresenceEvent) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// PublishRaw sends an arbitrary payload.
	PublishRaw(topic string, payload []byte, retained bool) error

	// Close flushes and disconnects.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PresenceEvent is one observed presence change.
type PresenceEvent struct {
	Timestamp    time.Time
	Availability string
	Activity     string
	// Path is "fast" when observed on a deep-sleep resume, else "running".
	Path string
}

// SystemEvent is a lifecycle event (boot, error, sleep, power off).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

type presencePayload struct {
	Presence presenceInner `json:"presence"`
}

type presenceInner struct {
	Timestamp    string `json:"timestamp"`
	Availability string `json:"availability"`
	Activity     string `json:"activity,omitempty"`
	Path         string `json:"path,omitempty"`
}

// FormatPresencePayload creates the JSON payload for a presence change.
func FormatPresencePayload(event PresenceEvent) ([]byte, error) {
	return json.Marshal(presencePayload{Presence: presenceInner{
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
		Availability: event.Availability,
		Activity:     event.Activity,
		Path:         event.Path,
	}})
}

type systemPayload struct {
	System systemInner `json:"system"`
}

type systemInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(systemPayload{System: systemInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}
