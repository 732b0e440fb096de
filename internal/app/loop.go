package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/light"
	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
	"github.com/thefoeyouknow/Teams-Pod/internal/menu"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

// running is the RUNNING loop: poll when due, then let the power policy
// choose how to wait for the next poll or input.
func (d *Device) running(ctx context.Context) *Halt {
	interval := d.cfg.Interval()
	for d.state == StateRunning {
		if ctx.Err() != nil {
			return &Halt{Kind: HaltExit, Reason: "cancelled"}
		}
		if !d.now().Before(d.lastPoll.Add(interval)) {
			d.lastPoll = d.now()
			if h := d.pollCycle(ctx); h != nil {
				return h
			}
			if d.state != StateRunning {
				return nil
			}
		}

		open, until := d.office()
		untilPoll := d.lastPoll.Add(interval).Sub(d.now())
		dec := d.engine.Decide(power.Input{
			OnUSB:           d.deps.Power.OnUSB(),
			UntilNextPoll:   untilPoll,
			PollInterval:    interval,
			OfficeOpen:      open,
			UntilOfficeOpen: until,
		})

		wait := untilPoll
		switch dec.Mode {
		case power.DeepSleep:
			if !open {
				d.deps.Display.OffHours(until)
			}
			return deepSleep(dec)
		case power.LightSleep:
			if err := d.deps.Net.Disconnect(); err != nil {
				log.Printf("app: %v", err)
			}
			if d.deps.Power.EnterLightSleep(dec.Duration, dec.Wake) == power.WakeButton {
				d.engine.NoteUserInput()
			}
			wait = power.Yield
		}
		if wait < power.Yield {
			wait = power.Yield
		}

		ev, ok := d.deps.Events.Wait(ctx, wait)
		if !ok {
			continue
		}
		if h := d.handleRunningEvent(ctx, ev); h != nil {
			return h
		}
	}
	return nil
}

func (d *Device) handleRunningEvent(ctx context.Context, ev logic.Event) *Halt {
	switch ev.Type {
	case logic.EventBootPress:
		d.engine.NoteUserInput()
		d.click()
		log.Printf("app: manual refresh")
		d.lastPoll = time.Time{}
	case logic.EventPowerPress:
		d.engine.NoteUserInput()
		d.click()
		return d.openMenu(ctx)
	case logic.EventPowerHold:
		log.Printf("app: power button held")
		return powerOff("power button")
	case logic.EventBootHold:
		d.engine.NoteUserInput()
	}
	return nil
}

// pollCycle runs connectivity, token refresh, fetch, render, lights and the
// battery guardian in that order. A step that moves to ERROR ends it.
func (d *Device) pollCycle(ctx context.Context) *Halt {
	if !d.deps.Net.Connected() {
		if err := d.deps.Net.Connect(ctx, d.creds.SSID, d.creds.Password); err != nil {
			log.Printf("app: %v, retry next cycle", err)
			return d.checkBattery()
		}
	}

	if d.auth.IsExpiringSoon() && !d.auth.Refresh(ctx) {
		log.Printf("app: early token refresh failed")
	}
	if !d.auth.HasValidToken() && !d.auth.Refresh(ctx) {
		d.enterError("Token Expired", "Scan QR to re-auth")
		return nil
	}

	p, err := d.pres.Fetch(ctx, d.auth.AccessToken())
	if errors.Is(err, presence.ErrUnauthorized) {
		log.Printf("app: token rejected, refreshing")
		if !d.auth.Refresh(ctx) {
			d.enterError("Auth Lost", "Scan QR to re-auth")
			return nil
		}
		p, err = d.pres.Fetch(ctx, d.auth.AccessToken())
	}
	if err != nil {
		log.Printf("app: presence fetch: %v", err)
	} else {
		changed := d.engine.RecordPoll(p.Availability)
		d.showPresence(p, "running", changed)
	}
	return d.checkBattery()
}

// showPresence renders and pushes to the lights only on change.
func (d *Device) showPresence(p presence.State, path string, changed bool) {
	d.current = p
	stable := int(d.engine.State().StableCount)
	d.report.Presence(p, path, stable, changed)
	if !changed {
		log.Printf("app: unchanged %s (stable %d)", p, stable)
		return
	}
	log.Printf("app: presence %s", p)
	d.deps.Display.Status(p, d.battery)
	if err := d.deps.Lights.ApplyPresence(d.cfg.Light, p.Availability); err != nil {
		log.Printf("app: lights: %v", err)
	}
}

// checkBattery is the inline battery guardian. Its alerts ignore the audio
// setting.
func (d *Device) checkBattery() *Halt {
	r, ok := d.readBattery()
	if !ok {
		return nil
	}
	switch r.Level {
	case battery.LevelCritical:
		log.Printf("app: battery critical %s, shutting down", r)
		d.deps.Audio.Error()
		d.deps.Display.LowBattery(r.Percent, true)
		d.pause(AlertPause)
		return powerOff("battery critical")
	case battery.LevelWarning:
		log.Printf("app: battery low %s", r)
		d.deps.Audio.Error()
		d.deps.Display.LowBattery(r.Percent, false)
		d.pause(AlertPause)
		if d.current.Availability != "" {
			d.deps.Display.Status(d.current, r)
		}
	}
	return nil
}

// openMenu runs the menu and carries out its action.
func (d *Device) openMenu(ctx context.Context) *Halt {
	switch a := d.menu.Run(ctx, "Menu", d.menuItems()); a {
	case menu.ActionRefresh:
		d.lastPoll = time.Time{}
	case menu.ActionRestart:
		return restart("menu")
	case menu.ActionFactoryReset:
		log.Printf("app: factory reset from menu")
		if err := d.deps.Creds.Clear(); err != nil {
			log.Printf("app: clear credentials: %v", err)
		}
		return restart("factory reset")
	case menu.ActionPowerOff:
		return powerOff("power button")
	}
	if d.current.Availability != "" {
		d.deps.Display.Status(d.current, d.battery)
	}
	return nil
}

func (d *Device) menuItems() []menu.Item {
	onOff := func(b *bool) func() string {
		return func() string {
			if *b {
				return "on"
			}
			return "off"
		}
	}
	return []menu.Item{
		{Label: "Refresh Now", Action: menu.ActionRefresh},
		{Label: "Settings >", Sub: []menu.Item{
			{Label: "Light", Value: d.lightLabel, Do: d.cycleLightType},
			{Label: "Test Light", Do: d.testLight},
			{Label: "Invert", Value: onOff(&d.cfg.InvertDisplay), Do: func() {
				d.cfg.InvertDisplay = !d.cfg.InvertDisplay
				d.configureDisplay()
				d.saveSettings()
			}},
			{Label: "Audio", Value: onOff(&d.cfg.AudioAlerts), Do: func() {
				d.cfg.AudioAlerts = !d.cfg.AudioAlerts
				d.saveSettings()
				if d.cfg.AudioAlerts {
					d.deps.Audio.Beep()
				}
			}},
			{Label: "< Back", Action: menu.ActionBack},
		}},
		{Label: "Restart", Action: menu.ActionRestart},
		{Label: "Factory Reset", Action: menu.ActionFactoryReset},
		{Label: "< Exit", Action: menu.ActionExit},
	}
}

var lightCycle = []settings.LightType{settings.LightNone, settings.LightWLED, settings.LightBulb, settings.LightWLEDMQTT}

func (d *Device) lightLabel() string {
	if d.cfg.Light.Type == settings.LightNone {
		return "none"
	}
	return string(d.cfg.Light.Type)
}

func (d *Device) cycleLightType() {
	next := settings.LightNone
	for i, t := range lightCycle {
		if t == d.cfg.Light.Type {
			next = lightCycle[(i+1)%len(lightCycle)]
			break
		}
	}
	d.cfg.Light.Type = next
	d.saveSettings()
}

func (d *Device) testLight() {
	if err := d.deps.Lights.ApplyPresence(d.cfg.Light, presence.Available); err != nil {
		log.Printf("app: light test: %v", err)
	}
	d.pause(time.Second)
	avail := d.current.Availability
	if avail == "" {
		if err := d.deps.Lights.Off(d.cfg.Light); err != nil {
			log.Printf("app: light test: %v", err)
		}
		return
	}
	if err := d.deps.Lights.ApplyPresence(d.cfg.Light, avail); err != nil {
		log.Printf("app: light test: %v", err)
	}
}

func (d *Device) saveSettings() {
	if err := d.deps.Settings.Save(d.cfg); err != nil {
		log.Printf("app: save settings: %v", err)
	}
}

var _ LightController = (*light.Controller)(nil)
