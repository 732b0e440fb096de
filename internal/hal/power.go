package hal

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
)

// Environment handed across a re-exec.
const (
	EnvWake  = "STATUS_POD_WAKE"
	EnvReset = "STATUS_POD_RESET"
)

// DefaultBatteryPath is the fuel gauge voltage in microvolts.
const DefaultBatteryPath = "/sys/class/power_supply/battery/voltage_now"

// Power implements the platform sleep, reset and battery calls.
type Power struct {
	BatteryPath string

	// Wake delivers debounced button presses while asleep.
	Wake <-chan power.WakeSource

	getenv  func(string) string
	environ func() []string
	exec    func(env []string) error
}

// NewPower returns a Power reading batteryPath and woken by wake.
func NewPower(batteryPath string, wake <-chan power.WakeSource) *Power {
	if batteryPath == "" {
		batteryPath = DefaultBatteryPath
	}
	return &Power{
		BatteryPath: batteryPath,
		Wake:        wake,
		getenv:      os.Getenv,
		environ:     os.Environ,
		exec:        reexec,
	}
}

// BatteryVoltage reads the gauge and converts microvolts to volts.
func (p *Power) BatteryVoltage() (float64, error) {
	data, err := os.ReadFile(p.BatteryPath)
	if err != nil {
		return 0, fmt.Errorf("read battery: %w", err)
	}
	uv, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse battery %q: %w", strings.TrimSpace(string(data)), err)
	}
	return float64(uv) / 1e6, nil
}

// OnUSB reports external power. A host without a gauge is mains powered.
func (p *Power) OnUSB() bool {
	v, err := p.BatteryVoltage()
	if err != nil {
		return true
	}
	return battery.OnUSB(v)
}

// ResetReason derives the reset cause from the environment left by the
// previous process.
func (p *Power) ResetReason() power.ResetReason {
	if p.getenv(EnvWake) != "" {
		return power.ResetDeepSleep
	}
	switch p.getenv(EnvReset) {
	case "software":
		return power.ResetSoftware
	case "panic":
		return power.ResetPanic
	case "watchdog":
		return power.ResetWatchdog
	}
	return power.ResetPowerOn
}

// WakeCause reports what ended the deep sleep that preceded this process.
func (p *Power) WakeCause() power.WakeCause {
	switch p.getenv(EnvWake) {
	case "timer":
		return power.WakeTimer
	case "button":
		return power.WakeButton
	}
	return power.WakeUndefined
}

// EnterLightSleep blocks until the timer fires or an armed button is pressed.
func (p *Power) EnterLightSleep(d time.Duration, wake power.WakeSource) power.WakeCause {
	log.Printf("power: light sleep %v wake=%s", d, wake)
	cause := p.block(d, wake)
	log.Printf("power: woke from light sleep (%s)", cause)
	return cause
}

// EnterDeepSleep blocks like light sleep and then replaces the process, so
// the next boot sees a deep-sleep reset. With no wake sources it never
// returns. It only returns on an exec failure.
func (p *Power) EnterDeepSleep(d time.Duration, wake power.WakeSource) error {
	log.Printf("power: deep sleep %v wake=%s", d, wake)
	cause := p.block(d, wake)
	env := append(p.cleanEnv(), EnvWake+"="+cause.String())
	return p.exec(env)
}

// Restart replaces the process with a software reset.
func (p *Power) Restart() error {
	log.Printf("power: restart")
	env := append(p.cleanEnv(), EnvReset+"=software")
	return p.exec(env)
}

func (p *Power) block(d time.Duration, wake power.WakeSource) power.WakeCause {
	// Presses from before the sleep do not count.
	for drained := false; !drained; {
		select {
		case <-p.Wake:
		default:
			drained = true
		}
	}

	var timer <-chan time.Time
	if wake.Has(power.WakeOnTimer) && d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}
	var buttons <-chan power.WakeSource
	if wake&power.WakeOnButtons != 0 {
		buttons = p.Wake
	}
	for {
		select {
		case <-timer:
			return power.WakeTimer
		case src, ok := <-buttons:
			if !ok {
				buttons = nil
				continue
			}
			if wake.Has(src) {
				return power.WakeButton
			}
		}
	}
}

func (p *Power) cleanEnv() []string {
	var env []string
	for _, kv := range p.environ() {
		if strings.HasPrefix(kv, EnvWake+"=") || strings.HasPrefix(kv, EnvReset+"=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

var errExecUnsupported = errors.New("re-exec not supported on this platform")
