package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/auth"
	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
	"github.com/thefoeyouknow/Teams-Pod/internal/mqtt"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
)

// Boot paths.
const (
	PathFast = "fast"
	PathFull = "full"
)

type resume int

const (
	resumeHalt resume = iota
	resumeFull
	resumeRunning
)

// Run boots the device and drives the state machine until it halts.
// Deep sleep, power off and restart are returned, not performed.
func (d *Device) Run(ctx context.Context) Halt {
	reason := d.deps.Power.ResetReason()
	log.Printf("boot: reset reason %s", reason)
	if err := d.engine.Boot(reason); err != nil {
		log.Printf("boot: %v", err)
	}
	d.userWake = reason == power.ResetDeepSleep && d.deps.Power.WakeCause() == power.WakeButton

	if reason == power.ResetDeepSleep && d.engine.FastResumeArmed() {
		h, next := d.fastResume(ctx)
		switch next {
		case resumeHalt:
			return *h
		case resumeRunning:
			return d.dispatch(ctx)
		}
	}

	if h := d.fullBoot(ctx); h != nil {
		return *h
	}
	return d.dispatch(ctx)
}

// dispatch runs state handlers until one halts.
func (d *Device) dispatch(ctx context.Context) Halt {
	for {
		var h *Halt
		switch d.state {
		case StateSetupBLE:
			h = d.setupBLE(ctx)
		case StateAuthDeviceCode:
			h = d.authDeviceCode(ctx)
		case StateRunning:
			h = d.running(ctx)
		case StateError:
			h = d.errorWait(ctx)
		default:
			log.Printf("app: no handler for state %s", d.state)
			return Halt{Kind: HaltExit, Reason: "no handler"}
		}
		if h != nil {
			return *h
		}
	}
}

// fastResume handles a deep-sleep wake. It never touches the power latch.
func (d *Device) fastResume(ctx context.Context) (*Halt, resume) {
	d.path = PathFast
	d.report.Boot(PathFast, power.ResetDeepSleep.String())

	if d.userWake {
		log.Printf("boot: button wake, full boot")
		return nil, d.fallThrough()
	}

	if err := d.deps.Board.InitBattery(); err != nil {
		log.Printf("boot: battery init: %v", err)
	}
	if r, ok := d.readBattery(); ok {
		switch r.Level {
		case battery.LevelUSB:
			log.Printf("boot: external power on timer wake, full boot")
			return nil, d.fallThrough()
		case battery.LevelCritical:
			log.Printf("boot: battery critical %s", r)
			d.initQuiet(d.deps.Board.InitDisplay, "display")
			d.initQuiet(d.deps.Board.InitAudio, "audio")
			d.deps.Audio.Error()
			d.deps.Display.LowBattery(r.Percent, true)
			d.pause(AlertPause)
			return powerOff("battery critical"), resumeHalt
		case battery.LevelWarning:
			log.Printf("boot: battery low %s", r)
			d.initQuiet(d.deps.Board.InitAudio, "audio")
			d.deps.Audio.Error()
		}
	}

	if !d.deps.Creds.HasStoredCredentials() {
		log.Printf("boot: no credentials on fast path, full boot")
		return nil, d.fallThrough()
	}
	d.loadSettings()
	if err := d.loadCredentials(); err != nil {
		log.Printf("boot: %v, full boot", err)
		return nil, d.fallThrough()
	}

	if err := d.deps.Net.Connect(ctx, d.creds.SSID, d.creds.Password); err != nil {
		log.Printf("boot: %v, sleeping one interval", err)
		return deepSleep(d.rearm(true, 0)), resumeHalt
	}
	if err := d.deps.Clock.Sync(ctx); err != nil {
		log.Printf("boot: clock sync: %v", err)
	}
	if open, until := d.office(); !open {
		log.Printf("boot: outside office hours, opens in %v", until)
		return deepSleep(d.rearm(false, until)), resumeHalt
	}

	d.auth = d.deps.NewAuth(d.creds)
	d.pres = d.deps.NewPresence(d.creds.Platform)
	if !d.auth.Refresh(ctx) {
		log.Printf("boot: token refresh failed on fast path, full boot")
		return nil, d.fallThrough()
	}
	p, err := d.pres.Fetch(ctx, d.auth.AccessToken())
	if err != nil {
		log.Printf("boot: presence fetch: %v, sleeping one interval", err)
		return deepSleep(d.rearm(true, 0)), resumeHalt
	}

	d.lastPoll = d.now()
	if !d.engine.RecordPoll(p.Availability) {
		st := d.engine.State()
		log.Printf("boot: presence unchanged %q (stable %d)", p.Availability, st.StableCount)
		d.current = p
		d.report.Presence(p, PathFast, int(st.StableCount), false)
		return deepSleep(d.rearm(true, 0)), resumeHalt
	}

	log.Printf("boot: presence changed to %q", p.Availability)
	if err := d.engine.EndDeepSleepCycle(); err != nil {
		log.Printf("boot: %v", err)
	}
	if err := d.deps.Board.InitDisplay(); err != nil {
		log.Printf("boot: display init: %v", err)
	}
	d.initQuiet(d.deps.Board.InitAudio, "audio")
	d.configureDisplay()
	if err := d.deps.Lights.LoadCache(); err != nil {
		log.Printf("boot: light cache: %v", err)
	}
	d.showPresence(p, PathFast, true)
	d.setState(StateRunning, "", "")
	d.report.System(mqtt.EventRunning, PathFast)
	return nil, resumeRunning
}

// fallThrough abandons the fast path. The retained cycle is cleared so a
// reset part-way through the full boot cannot resume on stale data.
func (d *Device) fallThrough() resume {
	if err := d.engine.EndDeepSleepCycle(); err != nil {
		log.Printf("boot: %v", err)
	}
	return resumeFull
}

// fullBoot brings up all hardware and lands in a state. It returns a halt
// only for terminal outcomes of the boot itself.
func (d *Device) fullBoot(ctx context.Context) *Halt {
	d.path = PathFull
	d.report.Boot(PathFull, d.deps.Power.ResetReason().String())

	if err := d.deps.Board.AssertPowerLatch(); err != nil {
		log.Printf("boot: power latch: %v", err)
	}
	if err := d.deps.Board.InitDisplay(); err != nil {
		log.Printf("boot: display init failed: %v", err)
		return powerOff("display init failed")
	}
	d.initQuiet(d.deps.Board.InitBattery, "battery")
	d.initQuiet(d.deps.Board.MountStorage, "storage")
	d.loadSettings()
	d.configureDisplay()
	d.initQuiet(d.deps.Board.InitAudio, "audio")
	d.report.System(mqtt.EventBoot, d.deps.Power.ResetReason().String())

	d.deps.Display.Splash(d.deps.Version)
	if h := d.gate(ctx); h != nil {
		return h
	}
	d.initQuiet(d.deps.Board.InitBLE, "provisioning")

	if !d.deps.Creds.HasStoredCredentials() {
		log.Printf("boot: no credentials, setup mode")
		d.enterSetup()
		return nil
	}
	if err := d.loadCredentials(); err != nil {
		log.Printf("boot: %v, setup mode", err)
		d.enterSetup()
		return nil
	}

	d.setState(StateConnectingWiFi, "", "")
	if err := d.deps.Net.Connect(ctx, d.creds.SSID, d.creds.Password); err != nil {
		log.Printf("boot: %v", err)
		d.enterError("WiFi Failed", "Check SSID / password")
		return nil
	}
	if err := d.deps.Clock.Sync(ctx); err != nil {
		log.Printf("boot: clock sync: %v", err)
	}
	if !d.userWake && !d.deps.Power.OnUSB() {
		if open, until := d.office(); !open {
			log.Printf("boot: outside office hours, opens in %v", until)
			d.deps.Display.OffHours(until)
			return deepSleep(d.rearm(false, until))
		}
	}

	if err := d.deps.Lights.LoadCache(); err != nil {
		log.Printf("boot: light cache: %v", err)
	}
	d.auth = d.deps.NewAuth(d.creds)
	d.pres = d.deps.NewPresence(d.creds.Platform)
	d.authenticate(ctx)
	return nil
}

// gate waits on the splash screen: a BOOT press continues, a BOOT hold
// clears credentials and restarts. It is skipped when nobody started this
// boot, such as a timer wake on external power.
func (d *Device) gate(ctx context.Context) *Halt {
	if d.deps.Power.ResetReason() == power.ResetDeepSleep && !d.userWake {
		log.Printf("boot: unattended wake, skipping gate")
		return nil
	}
	log.Printf("boot: splash, press BOOT to continue, hold 3s to reset")
	for {
		ev, ok := d.deps.Events.Wait(ctx, 0)
		if !ok {
			return &Halt{Kind: HaltExit, Reason: "cancelled at gate"}
		}
		switch ev.Type {
		case logic.EventBootPress:
			log.Printf("boot: continuing")
			d.click()
			return nil
		case logic.EventBootHold:
			log.Printf("boot: factory reset")
			d.deps.Display.Error("Factory Reset", "Clearing all data...")
			if err := d.deps.Creds.Clear(); err != nil {
				log.Printf("boot: clear credentials: %v", err)
			}
			return restart("factory reset")
		}
	}
}

// authenticate lands in RUNNING, AUTH_DEVICE_CODE or ERROR.
func (d *Device) authenticate(ctx context.Context) {
	if d.auth.Refresh(ctx) {
		d.enterRunning()
		return
	}
	log.Printf("boot: no usable token, starting sign-in")
	s, err := d.auth.StartInteractiveAuth(ctx)
	switch {
	case errors.Is(err, auth.ErrNotInteractive):
		d.enterError("Auth Failed", "Check credentials")
	case err != nil:
		log.Printf("boot: %v", err)
		d.enterError("Auth Error", "Device code request failed")
	default:
		d.session = s
		d.nextAuth = d.now().Add(s.Interval)
		d.setState(StateAuthDeviceCode, "", "")
		d.deps.Display.DeviceCode(s.UserCode, s.QRURL, s.ExpiresAt.Sub(d.now()).Round(time.Second))
	}
}

func (d *Device) initQuiet(step func() error, name string) {
	if err := step(); err != nil {
		log.Printf("boot: %s init: %v", name, err)
	}
}

func (d *Device) loadSettings() {
	cfg, err := d.deps.Settings.Load()
	if err != nil {
		log.Printf("boot: settings: %v, using defaults", err)
		return
	}
	d.cfg = cfg
}

func (d *Device) loadCredentials() error {
	cr, err := d.deps.Creds.Load()
	if err != nil {
		return err
	}
	d.creds = cr
	d.cfg.Platform = cr.Platform
	if cr.Light.Type != "" {
		d.cfg.Light.Type = cr.Light.Type
		d.cfg.Light.Host = cr.Light.Host
		d.cfg.Light.Topic = cr.Light.Topic
	}
	log.Printf("boot: platform %s, ssid %q", cr.Platform, cr.SSID)
	return nil
}

// configureDisplay applies display settings to renderers that take them.
func (d *Device) configureDisplay() {
	if c, ok := d.deps.Display.(interface{ Configure(invert bool, fullRefreshEvery int) }); ok {
		c.Configure(d.cfg.InvertDisplay, d.cfg.FullRefreshEvery)
	}
}

// office evaluates the schedule on the wall clock. An unsynced clock fails
// open.
func (d *Device) office() (bool, time.Duration) {
	t, ok := d.deps.Clock.Now()
	if !ok {
		return true, 0
	}
	t = t.In(d.cfg.Location())
	return d.cfg.OfficeHours.IsOpen(t), d.cfg.OfficeHours.UntilOpen(t)
}

// rearm is the deep sleep that follows a boot-time decision.
func (d *Device) rearm(open bool, until time.Duration) power.SleepDecision {
	return d.engine.Rearm(power.Input{
		PollInterval:    d.cfg.Interval(),
		OfficeOpen:      open,
		UntilOfficeOpen: until,
	})
}

func (d *Device) readBattery() (battery.Reading, bool) {
	v, err := d.deps.Power.BatteryVoltage()
	if err != nil {
		log.Printf("app: battery read: %v", err)
		return battery.Reading{}, false
	}
	r := d.guardian.Check(v)
	d.battery = r
	d.report.Battery(r)
	return r, true
}
