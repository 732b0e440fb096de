package logic

import "time"

// Detector debounces the BOOT and POWER buttons and turns stable presses into
// press (released before the hold time) and hold (held for the hold time)
// events.
type Detector struct {
	debounceDuration time.Duration
	holdDuration     time.Duration
	boot             ButtonState
	power            ButtonState
}

// NewDetector creates a detector with the given debounce and hold durations.
func NewDetector(debounceDuration, holdDuration time.Duration) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		holdDuration:     holdDuration,
	}
}

// Process takes a new input sample and returns any events that should be emitted.
// BOOT events are returned before POWER events when both fire on one sample.
func (d *Detector) Process(input Input) []Event {
	var events []Event
	if t, ok := d.processButton(&d.boot, boolToState(input.Boot), input.Time, EventBootPress, EventBootHold); ok {
		events = append(events, Event{Timestamp: input.Time, Type: t})
	}
	if t, ok := d.processButton(&d.power, boolToState(input.Power), input.Time, EventPowerPress, EventPowerHold); ok {
		events = append(events, Event{Timestamp: input.Time, Type: t})
	}
	return events
}

// processButton handles debounce and hold logic for a single button.
func (d *Detector) processButton(b *ButtonState, newState State, now time.Time, press, hold EventType) (EventType, bool) {
	if !b.Baselined {
		if b.Pending != newState {
			b.Pending = newState
			b.PendingSince = now
			return "", false
		}
		if now.Sub(b.PendingSince) >= d.debounceDuration {
			b.Stable = newState
			b.Baselined = true
			b.Pending = ""
			if newState == StatePressed {
				// Held since before we started sampling.
				b.PressedAt = b.PendingSince
				b.HoldFired = false
			}
		}
		return "", false
	}

	if newState == b.Stable {
		b.Pending = ""
		if b.Stable == StatePressed && !b.HoldFired && now.Sub(b.PressedAt) >= d.holdDuration {
			b.HoldFired = true
			return hold, true
		}
		return "", false
	}

	if b.Pending != newState {
		b.Pending = newState
		b.PendingSince = now
		return "", false
	}

	if now.Sub(b.PendingSince) < d.debounceDuration {
		return "", false
	}

	b.Stable = newState
	b.Pending = ""
	if newState == StatePressed {
		b.PressedAt = b.PendingSince
		b.HoldFired = false
		return "", false
	}
	if b.HoldFired {
		return "", false
	}
	return press, true
}

func boolToState(b bool) State {
	if b {
		return StatePressed
	}
	return StateReleased
}

// IsBaselined returns whether both buttons have a debounced baseline.
func (d *Detector) IsBaselined() bool {
	return d.boot.Baselined && d.power.Baselined
}

// CurrentState returns the current stable states.
func (d *Detector) CurrentState() (boot State, power State) {
	return d.boot.Stable, d.power.Stable
}

// AnyPressed reports whether either button is stably pressed.
func (d *Detector) AnyPressed() bool {
	return d.boot.Stable == StatePressed || d.power.Stable == StatePressed
}
