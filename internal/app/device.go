// Package app is the device core: it decides between the deep-sleep fast
// path and a full boot, runs the application state machine, and hands the
// final sleep, power-off or restart back to the caller as a Halt value.
package app

import (
	"context"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/auth"
	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
	"github.com/thefoeyouknow/Teams-Pod/internal/menu"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

// MaxPollFailures is the consecutive device code poll failure budget.
const MaxPollFailures = 5

// AlertPause is how long a battery screen stays up before moving on.
const AlertPause = 3 * time.Second

// State is the application state.
type State string

const (
	StateBoot           State = "BOOT"
	StateSetupBLE       State = "SETUP_BLE"
	StateConnectingWiFi State = "CONNECTING_WIFI"
	StateAuthDeviceCode State = "AUTH_DEVICE_CODE"
	StateRunning        State = "RUNNING"
	StateError          State = "ERROR"
)

// SettingsStore loads and saves device settings.
type SettingsStore interface {
	Load() (settings.Settings, error)
	Save(settings.Settings) error
}

// CredentialStore holds provisioned credentials.
type CredentialStore interface {
	HasStoredCredentials() bool
	Load() (settings.Credentials, error)
	Save(settings.Credentials) error
	Clear() error
}

// AuthFactory builds the token provider for the provisioned platform.
type AuthFactory func(settings.Credentials) auth.Provider

// PresenceFactory builds the presence provider for a platform.
type PresenceFactory func(settings.Platform) presence.Provider

// LightController drives ambient light fixtures.
type LightController interface {
	LoadCache() error
	ApplyPresence(cfg settings.LightConfig, availability string) error
	Off(cfg settings.LightConfig) error
}

// DisplayRenderer draws one screen per call.
type DisplayRenderer interface {
	Splash(version string)
	Setup(deviceName string)
	DeviceCode(userCode, qrURL string, expiresIn time.Duration)
	Status(p presence.State, b battery.Reading)
	Error(title, detail string)
	Shutdown()
	LowBattery(percent int, critical bool)
	OffHours(opensIn time.Duration)
	Menu(title string, items []string, selected int)
}

// AudioFeedback plays tones.
type AudioFeedback interface {
	Beep()
	Confirm()
	Error()
	Attention(repeats int)
}

// PowerHAL is the platform power interface. EnterDeepSleep only returns on
// failure.
type PowerHAL interface {
	BatteryVoltage() (float64, error)
	OnUSB() bool
	EnterLightSleep(d time.Duration, wake power.WakeSource) power.WakeCause
	EnterDeepSleep(d time.Duration, wake power.WakeSource) error
	Restart() error
	ResetReason() power.ResetReason
	WakeCause() power.WakeCause
}

// Board performs hardware bring-up.
type Board interface {
	AssertPowerLatch() error
	ReleasePowerLatch() error
	InitDisplay() error
	InitBattery() error
	MountStorage() error
	InitAudio() error
	InitBLE() error
}

// Network is the Wi-Fi link.
type Network interface {
	Connect(ctx context.Context, ssid, password string) error
	Connected() bool
	Disconnect() error
}

// WallClock is network-synchronised time.
type WallClock interface {
	Sync(ctx context.Context) error
	Now() (time.Time, bool)
}

// Events delivers button and provisioning events. A timeout of zero or
// less waits until an event arrives or ctx ends.
type Events interface {
	Wait(ctx context.Context, timeout time.Duration) (logic.Event, bool)
}

// Provisioner accepts credentials while in SETUP_BLE and reports success
// with a PROVISIONED event.
type Provisioner interface {
	Start(ctx context.Context)
}

// Deps are the collaborators of a Device.
type Deps struct {
	Settings    SettingsStore
	Creds       CredentialStore
	NewAuth     AuthFactory
	NewPresence PresenceFactory
	Lights      LightController
	Display     DisplayRenderer
	Audio       AudioFeedback
	Power       PowerHAL
	Board       Board
	Net         Network
	Clock       WallClock
	Events      Events
	Provisioner Provisioner
	Retained    power.Retained
	// Reporter is optional.
	Reporter Reporter
	// OnHalt, if set, runs before an irreversible halt.
	OnHalt func(Halt)

	DeviceName string
	Version    string
}

// Device owns the volatile session state for one boot.
type Device struct {
	deps     Deps
	report   Reporter
	guardian battery.Guardian
	menu     *menu.Navigator
	now      func() time.Time
	pause    func(time.Duration)

	state    State
	persist  power.PersistentState
	engine   *power.Engine
	cfg      settings.Settings
	creds    settings.Credentials
	auth     auth.Provider
	pres     presence.Provider
	session  *auth.Session
	current  presence.State
	battery  battery.Reading
	path     string
	lastPoll time.Time
	nextAuth time.Time
	// userWake is set when a button press started this boot.
	userWake bool
}

// New returns a Device over deps.
func New(deps Deps) *Device {
	d := &Device{
		deps:     deps,
		report:   deps.Reporter,
		guardian: battery.NewGuardian(),
		now:      time.Now,
		pause:    time.Sleep,
		state:    StateBoot,
		cfg:      settings.Default(),
	}
	if d.report == nil {
		d.report = nopReporter{}
	}
	d.engine = power.NewEngine(&d.persist, deps.Retained)
	d.menu = &menu.Navigator{Source: deps.Events, Screen: deps.Display, Click: d.click}
	return d
}

// State returns the current application state.
func (d *Device) State() State {
	return d.state
}

// Retained returns the current retained fields.
func (d *Device) Retained() power.PersistentState {
	return d.engine.State()
}

// Settings returns the settings loaded at boot.
func (d *Device) Settings() settings.Settings {
	return d.cfg
}

// Engine exposes the power policy for the halt executor.
func (d *Device) Engine() *power.Engine {
	return d.engine
}

func (d *Device) click() {
	if d.cfg.AudioAlerts {
		d.deps.Audio.Beep()
	}
}
