package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/thefoeyouknow/Teams-Pod/internal/mqtt"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
)

// HaltKind is how a boot ends.
type HaltKind int

const (
	// HaltExit returns to the caller without touching power, after ctx ends.
	HaltExit HaltKind = iota
	HaltDeepSleep
	HaltPowerOff
	HaltRestart
)

func (k HaltKind) String() string {
	switch k {
	case HaltDeepSleep:
		return "deep sleep"
	case HaltPowerOff:
		return "power off"
	case HaltRestart:
		return "restart"
	default:
		return "exit"
	}
}

// Halt is the terminal outcome of Run.
type Halt struct {
	Kind   HaltKind
	Sleep  power.SleepDecision
	Reason string
}

func (h Halt) String() string {
	if h.Kind == HaltDeepSleep {
		return fmt.Sprintf("%s %v (%s)", h.Kind, h.Sleep.Duration, h.Reason)
	}
	return fmt.Sprintf("%s (%s)", h.Kind, h.Reason)
}

func deepSleep(dec power.SleepDecision) *Halt {
	return &Halt{Kind: HaltDeepSleep, Sleep: dec, Reason: dec.Reason}
}

func powerOff(reason string) *Halt {
	return &Halt{Kind: HaltPowerOff, Reason: reason}
}

func restart(reason string) *Halt {
	return &Halt{Kind: HaltRestart, Reason: reason}
}

// Execute carries out a halt. It is the only caller of the irreversible
// platform calls, and deep sleep is committed to retained memory here and
// nowhere else. It returns only when the platform call fails or for
// HaltExit.
func (d *Device) Execute(h Halt) error {
	log.Printf("app: halt: %s", h)
	switch h.Kind {
	case HaltDeepSleep:
		d.report.System(mqtt.EventDeepSleep, h.Reason)
		d.beforeHalt(h)
		if err := d.deps.Net.Disconnect(); err != nil {
			log.Printf("app: %v", err)
		}
		if err := d.engine.CommitDeepSleep(); err != nil {
			// The flag stays clear, so the next boot takes the full path.
			log.Printf("app: %v", err)
		}
		return d.deps.Power.EnterDeepSleep(h.Sleep.Duration, h.Sleep.Wake)

	case HaltPowerOff:
		d.report.System(mqtt.EventPowerOff, h.Reason)
		d.beforeHalt(h)
		var errs []error
		errs = append(errs, d.deps.Lights.Off(d.cfg.Light))
		errs = append(errs, d.deps.Net.Disconnect())
		d.deps.Display.Shutdown()
		errs = append(errs, d.deps.Board.ReleasePowerLatch())
		if err := errors.Join(errs...); err != nil {
			log.Printf("app: power off: %v", err)
		}
		// Still running means external power: sleep with nothing armed.
		return d.deps.Power.EnterDeepSleep(0, 0)

	case HaltRestart:
		d.report.System(mqtt.EventRestart, h.Reason)
		d.beforeHalt(h)
		return d.deps.Power.Restart()
	}
	d.beforeHalt(h)
	return nil
}

func (d *Device) beforeHalt(h Halt) {
	if d.deps.OnHalt != nil {
		d.deps.OnHalt(h)
	}
}
