// Package logic contains pure input logic for the two device buttons.
// This package has NO external dependencies (no GPIO, display, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Timing defaults.
const (
	DefaultDebounce = 50 * time.Millisecond
	HoldDuration    = 3 * time.Second
)

// State represents the debounced position of a button.
type State string

const (
	StatePressed  State = "PRESSED"
	StateReleased State = "RELEASED"
)

// EventType is something the orchestrator reacts to.
type EventType string

const (
	EventBootPress   EventType = "BOOT_PRESS"
	EventBootHold    EventType = "BOOT_HOLD"
	EventPowerPress  EventType = "POWER_PRESS"
	EventPowerHold   EventType = "POWER_HOLD"
	EventProvisioned EventType = "PROVISIONED"
)

// IsButton reports whether the event came from a physical button.
func (e EventType) IsButton() bool {
	switch e {
	case EventBootPress, EventBootHold, EventPowerPress, EventPowerHold:
		return true
	}
	return false
}

// Event is a single input event.
type Event struct {
	Timestamp time.Time
	Type      EventType
}

// ButtonState tracks debounce and hold state for a single button.
type ButtonState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
	// When the current stable press began
	PressedAt time.Time
	// Whether the hold event already fired for the current press
	HoldFired bool
}

// Input represents a single sample of logical button states.
type Input struct {
	Boot  bool // true = pressed (already inverted from the active-low line)
	Power bool
	Time  time.Time
}
