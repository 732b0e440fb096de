// Package power owns the sleep policy and the state retained across deep
// sleep. Decisions are returned as values; nothing here calls into hardware.
package power

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// DeepSleepThreshold is the stable-poll count at which the device descends
// from light sleep between polls to deep sleep.
const DeepSleepThreshold = 3

// Light sleep tuning.
const (
	MinLightSleep    = time.Second
	LightSleepMargin = 500 * time.Millisecond
	Yield            = 100 * time.Millisecond
)

// ResetReason is the hardware reset cause.
type ResetReason int

const (
	ResetUnknown ResetReason = iota
	ResetPowerOn
	ResetSoftware
	ResetPanic
	ResetWatchdog
	ResetDeepSleep
	ResetBrownout
)

func (r ResetReason) String() string {
	switch r {
	case ResetPowerOn:
		return "POWER_ON"
	case ResetSoftware:
		return "SOFTWARE"
	case ResetPanic:
		return "PANIC"
	case ResetWatchdog:
		return "WATCHDOG"
	case ResetDeepSleep:
		return "DEEP_SLEEP"
	case ResetBrownout:
		return "BROWNOUT"
	default:
		return "UNKNOWN"
	}
}

// WakeCause is what ended the last sleep.
type WakeCause int

const (
	WakeUndefined WakeCause = iota
	WakeTimer
	WakeButton
)

func (w WakeCause) String() string {
	switch w {
	case WakeTimer:
		return "timer"
	case WakeButton:
		return "button"
	default:
		return "undefined"
	}
}

// WakeSource is a bitmask of sources armed before sleeping.
type WakeSource uint8

const (
	WakeOnTimer WakeSource = 1 << iota
	WakeOnBoot
	WakeOnPower

	WakeOnButtons = WakeOnBoot | WakeOnPower
	WakeOnAny     = WakeOnTimer | WakeOnButtons
)

// Has reports whether s is armed.
func (w WakeSource) Has(s WakeSource) bool {
	return w&s == s
}

func (w WakeSource) String() string {
	if w == 0 {
		return "none"
	}
	var parts []string
	if w.Has(WakeOnTimer) {
		parts = append(parts, "timer")
	}
	if w.Has(WakeOnBoot) {
		parts = append(parts, "boot")
	}
	if w.Has(WakeOnPower) {
		parts = append(parts, "power")
	}
	return strings.Join(parts, "+")
}

// Mode is the kind of sleep chosen.
type Mode int

const (
	Stay Mode = iota
	LightSleep
	DeepSleep
)

func (m Mode) String() string {
	switch m {
	case LightSleep:
		return "light sleep"
	case DeepSleep:
		return "deep sleep"
	default:
		return "stay"
	}
}

// SleepDecision is the outcome of one policy evaluation.
type SleepDecision struct {
	Mode     Mode
	Duration time.Duration
	Wake     WakeSource
	Reason   string
}

func (d SleepDecision) String() string {
	return fmt.Sprintf("%s %v wake=%s (%s)", d.Mode, d.Duration, d.Wake, d.Reason)
}

// Input is what the policy needs from the current RUNNING iteration.
type Input struct {
	OnUSB           bool
	UntilNextPoll   time.Duration
	PollInterval    time.Duration
	OfficeOpen      bool
	UntilOfficeOpen time.Duration
}

// Engine decides between staying awake, light sleep and deep sleep, and is
// the only writer of retained memory.
type Engine struct {
	state     *PersistentState
	retained  Retained
	Threshold uint8
}

// NewEngine returns an Engine that mutates state and persists it to retained.
func NewEngine(state *PersistentState, retained Retained) *Engine {
	return &Engine{
		state:     state,
		retained:  retained,
		Threshold: DeepSleepThreshold,
	}
}

// State returns a copy of the current retained fields.
func (e *Engine) State() PersistentState {
	return *e.state
}

// Boot initialises state after a reset. Any reset other than a deep-sleep
// wake zeroes retained memory. A corrupt image after a deep-sleep wake is
// treated as zero and returned as an error for logging.
func (e *Engine) Boot(reason ResetReason) error {
	if reason != ResetDeepSleep {
		*e.state = PersistentState{}
		if err := e.retained.Store(*e.state); err != nil {
			return fmt.Errorf("zero retained memory: %w", err)
		}
		return nil
	}

	st, err := e.retained.Load()
	if err != nil {
		*e.state = PersistentState{}
		return fmt.Errorf("load retained memory: %w", err)
	}
	*e.state = st
	return nil
}

// FastResumeArmed reports whether the last sleep was a deep sleep.
func (e *Engine) FastResumeArmed() bool {
	return e.state.DeepSleepActive
}

// EndDeepSleepCycle clears the deep-sleep flag and the stable count and
// persists that, so a later reset cannot take the fast path on stale data.
func (e *Engine) EndDeepSleepCycle() error {
	e.state.DeepSleepActive = false
	e.state.StableCount = 0
	return e.retained.Store(*e.state)
}

// RecordPoll updates the stable count from a fetched availability and
// reports whether it differs from the last observed one.
func (e *Engine) RecordPoll(availability string) bool {
	if availability == e.state.LastAvailability {
		if e.state.StableCount < 255 {
			e.state.StableCount++
		}
		return false
	}
	e.state.SetAvailability(availability)
	e.state.StableCount = 0
	return true
}

// NoteUserInput resets the stable count; a user interacting with the device
// should not be dropped into deep sleep.
func (e *Engine) NoteUserInput() {
	if e.state.StableCount != 0 {
		log.Printf("power: user input, stable count %d -> 0", e.state.StableCount)
	}
	e.state.StableCount = 0
}

// Decide evaluates the policy for one RUNNING iteration.
func (e *Engine) Decide(in Input) SleepDecision {
	if in.OnUSB {
		return SleepDecision{Mode: Stay, Duration: Yield, Reason: "usb power"}
	}
	if !in.OfficeOpen || e.state.StableCount >= e.Threshold {
		return e.Rearm(in)
	}
	if in.UntilNextPoll >= MinLightSleep {
		return SleepDecision{
			Mode:     LightSleep,
			Duration: in.UntilNextPoll - LightSleepMargin,
			Wake:     WakeOnAny,
			Reason:   fmt.Sprintf("stable %d/%d", e.state.StableCount, e.Threshold),
		}
	}
	return SleepDecision{Mode: Stay, Duration: Yield, Reason: "poll due"}
}

// Rearm returns the deep sleep that follows a poll on battery: until the
// office window opens when it is closed, otherwise one poll interval.
func (e *Engine) Rearm(in Input) SleepDecision {
	d := SleepDecision{
		Mode:     DeepSleep,
		Duration: in.PollInterval,
		Wake:     WakeOnAny,
		Reason:   fmt.Sprintf("presence stable x%d", e.state.StableCount),
	}
	if !in.OfficeOpen && in.UntilOfficeOpen > 0 {
		d.Duration = in.UntilOfficeOpen
		d.Reason = "outside office hours"
	}
	return d
}

// CommitDeepSleep persists the last availability and sets DeepSleepActive.
// It must only be called immediately before the platform deep-sleep call.
func (e *Engine) CommitDeepSleep() error {
	e.state.DeepSleepActive = true
	if err := e.retained.Store(*e.state); err != nil {
		e.state.DeepSleepActive = false
		return fmt.Errorf("commit retained memory: %w", err)
	}
	log.Printf("power: retained committed (stable=%d availability=%q)", e.state.StableCount, e.state.LastAvailability)
	return nil
}
