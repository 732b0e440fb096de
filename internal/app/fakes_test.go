package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/auth"
	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

// Monday 2026-03-02 10:00 UTC.
var wallStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time            { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// step is one scripted input: after the delay, the event fires. An empty
// event ends the script and cancels the run.
type step struct {
	after time.Duration
	ev    logic.EventType
}

func press(ev logic.EventType) step {
	return step{after: 10 * time.Millisecond, ev: ev}
}

type fakeEvents struct {
	clock  *clock
	steps  []step
	cancel context.CancelFunc
	waits  int
}

func (f *fakeEvents) Wait(ctx context.Context, timeout time.Duration) (logic.Event, bool) {
	f.waits++
	if ctx.Err() != nil {
		return logic.Event{}, false
	}
	if len(f.steps) == 0 || f.waits > 10000 {
		f.cancel()
		return logic.Event{}, false
	}
	s := f.steps[0]
	if timeout > 0 && s.after > timeout {
		f.clock.advance(timeout)
		f.steps[0].after -= timeout
		return logic.Event{}, false
	}
	f.clock.advance(s.after)
	f.steps = f.steps[1:]
	if s.ev == "" {
		f.cancel()
		return logic.Event{}, false
	}
	return logic.Event{Type: s.ev, Timestamp: f.clock.now()}, true
}

type sleepCall struct {
	d    time.Duration
	wake power.WakeSource
}

type fakePower struct {
	clock       *clock
	reset       power.ResetReason
	wake        power.WakeCause
	volts       float64
	voltErr     error
	lightCause  power.WakeCause
	lightSleeps []sleepCall
	deepSleeps  []sleepCall
	restarts    int
}

func (p *fakePower) BatteryVoltage() (float64, error) { return p.volts, p.voltErr }
func (p *fakePower) OnUSB() bool                      { return p.voltErr != nil || battery.OnUSB(p.volts) }
func (p *fakePower) ResetReason() power.ResetReason   { return p.reset }
func (p *fakePower) WakeCause() power.WakeCause       { return p.wake }

func (p *fakePower) EnterLightSleep(d time.Duration, wake power.WakeSource) power.WakeCause {
	p.lightSleeps = append(p.lightSleeps, sleepCall{d, wake})
	p.clock.advance(d)
	if p.lightCause != power.WakeUndefined {
		return p.lightCause
	}
	return power.WakeTimer
}

func (p *fakePower) EnterDeepSleep(d time.Duration, wake power.WakeSource) error {
	p.deepSleeps = append(p.deepSleeps, sleepCall{d, wake})
	return nil
}

func (p *fakePower) Restart() error {
	p.restarts++
	return nil
}

type fakeBoard struct {
	steps []string
	fail  map[string]error
}

func (b *fakeBoard) do(name string) error {
	b.steps = append(b.steps, name)
	return b.fail[name]
}

func (b *fakeBoard) AssertPowerLatch() error  { return b.do("latch") }
func (b *fakeBoard) ReleasePowerLatch() error { return b.do("release") }
func (b *fakeBoard) InitDisplay() error       { return b.do("display") }
func (b *fakeBoard) InitBattery() error       { return b.do("battery") }
func (b *fakeBoard) MountStorage() error      { return b.do("storage") }
func (b *fakeBoard) InitAudio() error         { return b.do("audio") }
func (b *fakeBoard) InitBLE() error           { return b.do("ble") }

func (b *fakeBoard) has(name string) bool {
	for _, s := range b.steps {
		if s == name {
			return true
		}
	}
	return false
}

type fakeNet struct {
	connectErr  error
	up          bool
	connects    int
	disconnects int
}

func (n *fakeNet) Connect(ctx context.Context, ssid, password string) error {
	n.connects++
	if n.connectErr != nil {
		return n.connectErr
	}
	n.up = true
	return nil
}

func (n *fakeNet) Connected() bool { return n.up }

func (n *fakeNet) Disconnect() error {
	n.disconnects++
	n.up = false
	return nil
}

type fakeWall struct {
	clock   *clock
	offset  time.Duration
	synced  bool
	syncErr error
}

func (w *fakeWall) Sync(ctx context.Context) error {
	if w.syncErr != nil {
		return w.syncErr
	}
	w.synced = true
	return nil
}

func (w *fakeWall) Now() (time.Time, bool) {
	return wallStart.Add(w.offset).Add(w.clock.now().Sub(monoStart)), w.synced
}

type fakeAuth struct {
	clock      *clock
	refreshOK  []bool
	valid      bool
	expiring   bool
	// expired forces the access token invalid whatever Refresh returns.
	expired    bool
	refreshes  int
	startErr   error
	lifetime   time.Duration
	interval   time.Duration
	polls      []auth.PollResult
	pollCount  int
	startCount int
}

func (a *fakeAuth) StartInteractiveAuth(ctx context.Context) (*auth.Session, error) {
	a.startCount++
	if a.startErr != nil {
		return nil, a.startErr
	}
	return &auth.Session{
		DeviceCode: "dc",
		UserCode:   "ABCD-EFGH",
		QRURL:      auth.QRURL("https://login.example/device", "ABCD-EFGH"),
		ExpiresAt:  a.clock.now().Add(a.lifetime),
		Interval:   a.interval,
	}, nil
}

func (a *fakeAuth) PollForToken(ctx context.Context, s *auth.Session) auth.PollResult {
	a.pollCount++
	if len(a.polls) == 0 {
		return auth.PollPending
	}
	r := a.polls[0]
	a.polls = a.polls[1:]
	if r == auth.PollSuccess {
		a.valid = true
	}
	return r
}

func (a *fakeAuth) Refresh(ctx context.Context) bool {
	a.refreshes++
	ok := false
	if len(a.refreshOK) > 0 {
		ok = a.refreshOK[0]
		if len(a.refreshOK) > 1 {
			a.refreshOK = a.refreshOK[1:]
		}
	}
	if ok {
		a.valid = true
	}
	return ok
}

func (a *fakeAuth) HasValidToken() bool  { return a.valid && !a.expired }
func (a *fakeAuth) IsExpiringSoon() bool { return a.expiring }
func (a *fakeAuth) AccessToken() string  { return "token" }

type fetchResult struct {
	state presence.State
	err   error
}

type fakePresence struct {
	results []fetchResult
	fetches int
}

func (p *fakePresence) Fetch(ctx context.Context, token string) (presence.State, error) {
	p.fetches++
	if len(p.results) == 0 {
		return presence.State{}, errors.New("no scripted result")
	}
	r := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return r.state, r.err
}

func avail(a string) fetchResult {
	return fetchResult{state: presence.State{Availability: a, Activity: a}}
}

type fakeLights struct {
	applied []string
	offs    int
	loads   int
}

func (l *fakeLights) LoadCache() error {
	l.loads++
	return nil
}

func (l *fakeLights) ApplyPresence(cfg settings.LightConfig, availability string) error {
	l.applied = append(l.applied, availability)
	return nil
}

func (l *fakeLights) Off(cfg settings.LightConfig) error {
	l.offs++
	return nil
}

type fakeDisplay struct {
	screens []string
}

func (f *fakeDisplay) add(format string, a ...any) {
	f.screens = append(f.screens, fmt.Sprintf(format, a...))
}

func (f *fakeDisplay) Splash(version string)    { f.add("splash") }
func (f *fakeDisplay) Setup(deviceName string) { f.add("setup") }
func (f *fakeDisplay) DeviceCode(userCode, qrURL string, expiresIn time.Duration) {
	f.add("code %s", userCode)
}
func (f *fakeDisplay) Status(p presence.State, b battery.Reading) { f.add("status %s", p.Availability) }
func (f *fakeDisplay) Error(title, detail string)               { f.add("error %s", title) }
func (f *fakeDisplay) Shutdown()                                { f.add("shutdown") }
func (f *fakeDisplay) LowBattery(percent int, critical bool) {
	f.add("battery %d %t", percent, critical)
}
func (f *fakeDisplay) OffHours(opensIn time.Duration) { f.add("offhours") }
func (f *fakeDisplay) Menu(title string, items []string, selected int) {
	f.add("menu %s %d", title, selected)
}

func (f *fakeDisplay) count(prefix string) int {
	n := 0
	for _, s := range f.screens {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeAudio struct {
	played []string
}

func (a *fakeAudio) Beep()    { a.played = append(a.played, "beep") }
func (a *fakeAudio) Confirm() { a.played = append(a.played, "confirm") }
func (a *fakeAudio) Error()   { a.played = append(a.played, "error") }
func (a *fakeAudio) Attention(n int) {
	a.played = append(a.played, fmt.Sprintf("attention%d", n))
}

type fakeCreds struct {
	cr      settings.Credentials
	cleared bool
}

func (c *fakeCreds) HasStoredCredentials() bool { return c.cr.Valid() }

func (c *fakeCreds) Load() (settings.Credentials, error) {
	if !c.cr.Valid() {
		return settings.Credentials{}, settings.ErrNoCredentials
	}
	return c.cr, nil
}

func (c *fakeCreds) Save(cr settings.Credentials) error {
	c.cr = cr
	return nil
}

func (c *fakeCreds) Clear() error {
	c.cr = settings.Credentials{}
	c.cleared = true
	return nil
}

type fakeSettings struct {
	cfg   settings.Settings
	saves int
}

func (s *fakeSettings) Load() (settings.Settings, error) { return s.cfg, nil }

func (s *fakeSettings) Save(cfg settings.Settings) error {
	s.cfg = cfg
	s.saves++
	return nil
}

type fakeProvisioner struct {
	started int
}

func (p *fakeProvisioner) Start(ctx context.Context) { p.started++ }

var monoStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// rig wires a Device over fakes. Defaults: cold boot, battery at 75%,
// provisioned Teams credentials, working network and a valid refresh token.
type rig struct {
	t        *testing.T
	clock    *clock
	events   *fakeEvents
	power    *fakePower
	board    *fakeBoard
	net      *fakeNet
	wall     *fakeWall
	auth     *fakeAuth
	pres     *fakePresence
	lights   *fakeLights
	display  *fakeDisplay
	audio    *fakeAudio
	creds    *fakeCreds
	settings *fakeSettings
	prov     *fakeProvisioner
	retained *power.MemRetained
	ctx      context.Context
}

func newRig(t *testing.T) *rig {
	t.Helper()
	c := &clock{t: monoStart}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := settings.Default()
	return &rig{
		t:        t,
		clock:    c,
		events:   &fakeEvents{clock: c, cancel: cancel},
		power:    &fakePower{clock: c, reset: power.ResetPowerOn, volts: 3.9},
		board:    &fakeBoard{fail: map[string]error{}},
		net:      &fakeNet{},
		wall:     &fakeWall{clock: c},
		auth:     &fakeAuth{clock: c, refreshOK: []bool{true}, lifetime: 15 * time.Minute, interval: 5 * time.Second},
		pres:     &fakePresence{results: []fetchResult{avail(presence.Available)}},
		lights:   &fakeLights{},
		display:  &fakeDisplay{},
		audio:    &fakeAudio{},
		creds:    &fakeCreds{cr: settings.Credentials{SSID: "office", Password: "pw", ClientID: "cid", TenantID: "tid"}},
		settings: &fakeSettings{cfg: cfg},
		prov:     &fakeProvisioner{},
		retained: power.NewMemRetained(),
		ctx:      ctx,
	}
}

func (r *rig) script(steps ...step) {
	r.events.steps = append(r.events.steps, steps...)
}

// armFastPath leaves retained memory as a committed deep sleep would.
func (r *rig) armFastPath(stable uint8, last string) {
	r.t.Helper()
	if err := r.retained.Store(power.PersistentState{DeepSleepActive: true, StableCount: stable, LastAvailability: last}); err != nil {
		r.t.Fatal(err)
	}
	r.power.reset = power.ResetDeepSleep
	r.power.wake = power.WakeTimer
}

func (r *rig) device() *Device {
	d := New(Deps{
		Settings:    r.settings,
		Creds:       r.creds,
		NewAuth:     func(settings.Credentials) auth.Provider { return r.auth },
		NewPresence: func(settings.Platform) presence.Provider { return r.pres },
		Lights:      r.lights,
		Display:     r.display,
		Audio:       r.audio,
		Power:       r.power,
		Board:       r.board,
		Net:         r.net,
		Clock:       r.wall,
		Events:      r.events,
		Provisioner: r.prov,
		Retained:    r.retained,
		DeviceName:  "pod-test",
		Version:     "test",
	})
	d.now = r.clock.now
	d.pause = func(time.Duration) {}
	return d
}

func (r *rig) run() (*Device, Halt) {
	d := r.device()
	return d, d.Run(r.ctx)
}

func (r *rig) stored() power.PersistentState {
	r.t.Helper()
	st, err := r.retained.Load()
	if err != nil {
		r.t.Fatalf("load retained: %v", err)
	}
	return st
}
