package app

import (
	"context"
	"log"

	"github.com/thefoeyouknow/Teams-Pod/internal/auth"
	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
	"github.com/thefoeyouknow/Teams-Pod/internal/mqtt"
)

func (d *Device) setState(s State, title, detail string) {
	if d.state != s {
		log.Printf("app: %s -> %s", d.state, s)
	}
	d.state = s
	d.report.State(s, title, detail)
}

func (d *Device) enterSetup() {
	d.setState(StateSetupBLE, "", "")
	d.deps.Display.Setup(d.deps.DeviceName)
}

// enterError shows a fatal error and turns the lights off so they cannot
// show a stale presence. No sleep decision follows.
func (d *Device) enterError(title, detail string) {
	log.Printf("app: error: %s: %s", title, detail)
	d.session = nil
	d.setState(StateError, title, detail)
	if err := d.deps.Lights.Off(d.cfg.Light); err != nil {
		log.Printf("app: lights off: %v", err)
	}
	d.deps.Display.Error(title, detail)
	if d.cfg.AudioAlerts {
		d.deps.Audio.Attention(3)
	}
	d.report.System(mqtt.EventError, title)
}

// enterRunning schedules an immediate poll.
func (d *Device) enterRunning() {
	d.session = nil
	d.lastPoll = d.now().Add(-d.cfg.Interval())
	d.setState(StateRunning, "", "")
	d.report.System(mqtt.EventRunning, d.path)
}

// setupBLE waits for provisioning, then restarts into a full boot.
func (d *Device) setupBLE(ctx context.Context) *Halt {
	if d.deps.Provisioner != nil {
		d.deps.Provisioner.Start(ctx)
	}
	for {
		ev, ok := d.deps.Events.Wait(ctx, 0)
		if !ok {
			return &Halt{Kind: HaltExit, Reason: "cancelled in setup"}
		}
		switch ev.Type {
		case logic.EventProvisioned:
			log.Printf("app: credentials provisioned")
			if d.cfg.AudioAlerts {
				d.deps.Audio.Confirm()
			}
			return restart("provisioned")
		case logic.EventPowerHold:
			return powerOff("power button")
		}
	}
}

// authDeviceCode polls for a token at the session interval. Expiry is a
// hard deadline checked before every poll; pending responses reset the
// failure count.
func (d *Device) authDeviceCode(ctx context.Context) *Halt {
	s := d.session
	if s.Interval <= 0 {
		s.Interval = auth.DefaultPollInterval
	}
	for d.state == StateAuthDeviceCode {
		now := d.now()
		if s.Expired(now) {
			d.enterError("Auth Timeout", "Code expired, restart")
			return nil
		}

		wait := d.nextAuth.Sub(now)
		if left := s.ExpiresAt.Sub(now); left < wait {
			wait = left
		}
		if wait > 0 {
			ev, ok := d.deps.Events.Wait(ctx, wait)
			if ctx.Err() != nil {
				return &Halt{Kind: HaltExit, Reason: "cancelled during sign-in"}
			}
			if ok {
				if ev.Type == logic.EventPowerHold {
					return powerOff("power button")
				}
				continue
			}
			if d.now().Before(d.nextAuth) {
				continue
			}
		}

		d.nextAuth = d.now().Add(s.Interval)
		switch r := d.auth.PollForToken(ctx, s); r {
		case auth.PollSuccess:
			log.Printf("app: signed in")
			d.enterRunning()
		case auth.PollPending:
			s.Failures = 0
		case auth.PollFailure:
			s.Failures++
			log.Printf("app: poll failure %d/%d", s.Failures, MaxPollFailures)
			if s.Failures >= MaxPollFailures {
				d.enterError("Auth Error", "Token request denied")
			}
		default:
			d.enterError("Auth Error", "Sign-in rejected")
		}
	}
	return nil
}

// errorWait stays awake until BOOT is held.
func (d *Device) errorWait(ctx context.Context) *Halt {
	for {
		ev, ok := d.deps.Events.Wait(ctx, 0)
		if !ok {
			return &Halt{Kind: HaltExit, Reason: "cancelled in error"}
		}
		if ev.Type == logic.EventBootHold {
			return restart("user restart from error")
		}
	}
}
