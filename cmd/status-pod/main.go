// Command status-pod runs the meeting presence display: it boots through the
// deep-sleep fast path or a full boot, polls Teams or Zoom presence, and
// mirrors it to the panel, ambient lights and MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/thefoeyouknow/Teams-Pod/internal/app"
	"github.com/thefoeyouknow/Teams-Pod/internal/audio"
	"github.com/thefoeyouknow/Teams-Pod/internal/auth"
	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/display"
	"github.com/thefoeyouknow/Teams-Pod/internal/gpio"
	"github.com/thefoeyouknow/Teams-Pod/internal/hal"
	"github.com/thefoeyouknow/Teams-Pod/internal/light"
	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
	"github.com/thefoeyouknow/Teams-Pod/internal/mqtt"
	"github.com/thefoeyouknow/Teams-Pod/internal/power"
	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/provision"
	"github.com/thefoeyouknow/Teams-Pod/internal/schedule"
	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
	"github.com/thefoeyouknow/Teams-Pod/internal/status"
	"github.com/thefoeyouknow/Teams-Pod/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	chip         string
	pinBoot      int
	pinPower     int
	pinLatch     int
	sample       time.Duration
	retainedPath string
	sdDir        string
	nvsPath      string
	iface        string
	ntpServer    string
	batteryPath  string
	broker       string
	httpAddr     string
	printState   bool
}

func main() {
	var o options
	flag.StringVar(&o.chip, "gpio-chip", "gpiochip0", "GPIO character device")
	flag.IntVar(&o.pinBoot, "pin-boot", gpio.DefaultPinBoot, "BCM pin number for the BOOT button")
	flag.IntVar(&o.pinPower, "pin-power", gpio.DefaultPinPower, "BCM pin number for the POWER button")
	flag.IntVar(&o.pinLatch, "pin-latch", gpio.DefaultPinLatch, "BCM pin number for the VBAT power latch")
	flag.DurationVar(&o.sample, "sample", 20*time.Millisecond, "Button sampling interval")
	flag.StringVar(&o.retainedPath, "retained", hal.DefaultRetainedPath, "Retained memory image (must survive re-exec, not reboot)")
	flag.StringVar(&o.sdDir, "sd", "/media/sd", "SD card mount for config.yaml, the light cache and provisioning drops")
	flag.StringVar(&o.nvsPath, "nvs", "/var/lib/status-pod/nvs.db", "Non-volatile key/value store")
	flag.StringVar(&o.iface, "iface", "wlan0", "Wi-Fi interface")
	flag.StringVar(&o.ntpServer, "ntp", hal.DefaultNTPServer, "NTP server")
	flag.StringVar(&o.batteryPath, "battery", hal.DefaultBatteryPath, "Fuel gauge voltage file (microvolts)")
	flag.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.BoolVar(&o.printState, "print-state", false, "Print buttons, battery and retained state and exit")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	nvs, err := settings.OpenNVS(o.nvsPath)
	if err != nil {
		return fmt.Errorf("init nvs: %w", err)
	}
	defer nvs.Close()

	buttons, err := gpio.NewRealReader(o.chip, o.pinBoot, o.pinPower)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer buttons.Close()

	wake := make(chan power.WakeSource, 1)
	hp := hal.NewPower(o.batteryPath, wake)
	retained := hal.NewFileRetained(o.retainedPath)

	if o.printState {
		return printState(os.Stdout, buttons, hp, retained)
	}

	latch, err := gpio.NewRealLatch(o.chip, o.pinLatch)
	if err != nil {
		return fmt.Errorf("init latch: %w", err)
	}
	defer latch.Close()

	deviceID, err := loadDeviceID(nvs)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}

	// The pump outlives the signal context so a button can still end a
	// deep sleep after Run has returned.
	pumpCtx, stopPump := context.WithCancel(context.Background())
	defer stopPump()
	queue := app.NewEventQueue(16)
	ticker := time.NewTicker(o.sample)
	defer ticker.Stop()
	go pumpButtons(pumpCtx, buttons, logic.NewDetector(logic.DefaultDebounce, logic.HoldDuration), ticker.C, queue, wake)

	var (
		pub      mqtt.Publisher
		lightPub light.Publisher
	)
	if o.broker != "" {
		rp := mqtt.NewRealPublisher(o.broker, deviceID)
		pub, lightPub = rp, rp
	}

	settingsStore := settings.Fallback{
		Primary:   settings.NewFileStore(o.sdDir),
		Secondary: settings.NVSSettings{NVS: nvs},
	}
	creds := settings.CredentialStore{NVS: nvs}
	tokens := settings.TokenStore{NVS: nvs}
	client := &http.Client{Timeout: 10 * time.Second}

	lights := light.NewController(client, lightPub, o.sdDir)
	console := display.NewConsole(os.Stdout, false, 10)
	bell := audio.NewBell(os.Stdout)
	link := hal.NewLink(o.iface)
	clock := hal.NewNTPClock(o.ntpServer)
	watcher := provision.NewWatcher(o.sdDir, creds, lights, func() {
		queue.Push(logic.Event{Type: logic.EventProvisioned, Timestamp: time.Now()})
	})

	tracker := status.NewTracker(time.Now(), trackerConfig(settingsStore, deviceID, o))

	var srv *web.Server
	if o.httpAddr != "" {
		srv = web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	dev := app.New(app.Deps{
		Settings: settingsStore,
		Creds:    creds,
		NewAuth: func(cr settings.Credentials) auth.Provider {
			return auth.New(cr, tokens, client)
		},
		NewPresence: func(p settings.Platform) presence.Provider {
			return presence.New(p, client)
		},
		Lights:      lights,
		Display:     console,
		Audio:       bell,
		Power:       hp,
		Board:       &hal.Board{Latch: latch, Display: console, Power: hp, SDDir: o.sdDir, Audio: bell, Radio: watcher},
		Net:         link,
		Clock:       clock,
		Events:      queue,
		Provisioner: watcher,
		Retained:    retained,
		Reporter:    app.NewStatusReporter(tracker, pub, link),
		OnHalt: func(h app.Halt) {
			if srv != nil {
				stopHTTP(srv, time.Second)
			}
			if pub != nil {
				pub.Close()
			}
		},
		DeviceName: "status-pod-" + deviceID,
		Version:    version,
	})

	log.Printf("started: device=%s version=%s broker=%q", deviceID, version, o.broker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	h := dev.Run(ctx)
	stop()
	if err := dev.Execute(h); err != nil {
		return fmt.Errorf("%s: %w", h.Kind, err)
	}
	return nil
}

// pumpButtons samples the buttons on every tick and queues the detected
// events. Each press is also offered as a wake source to a pending sleep.
func pumpButtons(ctx context.Context, r gpio.Reader, det *logic.Detector, tick <-chan time.Time, q *app.EventQueue, wake chan<- power.WakeSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tick:
			boot, pwr, err := r.Read()
			if err != nil {
				log.Printf("gpio read error: %v", err)
				continue
			}
			for _, ev := range det.Process(logic.Input{Boot: boot, Power: pwr, Time: t}) {
				log.Printf("event: %s", ev.Type)
				q.Push(ev)
				select {
				case wake <- wakeSourceFor(ev.Type):
				default:
				}
			}
		}
	}
}

func wakeSourceFor(t logic.EventType) power.WakeSource {
	switch t {
	case logic.EventPowerPress, logic.EventPowerHold:
		return power.WakeOnPower
	}
	return power.WakeOnBoot
}

// NVS location of the device identity.
const (
	namespaceDevice = "pod_device"
	keyDeviceID     = "id"
)

// loadDeviceID returns the persisted device id, minting one on first boot.
func loadDeviceID(nvs *settings.NVS) (string, error) {
	id, ok, err := nvs.Get(namespaceDevice, keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()[:8]
	if err := nvs.Put(namespaceDevice, keyDeviceID, id); err != nil {
		return "", err
	}
	log.Printf("minted device id %s", id)
	return id, nil
}

type settingsLoader interface {
	Load() (settings.Settings, error)
}

// trackerConfig describes the device on the status page. A failed load falls
// back to the defaults the device itself would boot with.
func trackerConfig(st settingsLoader, deviceID string, o options) status.Config {
	cfg, err := st.Load()
	if err != nil {
		log.Printf("settings load error, status page shows defaults: %v", err)
		cfg = settings.Default()
	}
	return status.Config{
		DeviceID:     deviceID,
		Platform:     cfg.Platform.String(),
		PollInterval: cfg.Interval(),
		OfficeHours:  officeHoursLabel(cfg.OfficeHours),
		Timezone:     cfg.Timezone,
		Broker:       o.broker,
		HTTPAddr:     o.httpAddr,
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func stopHTTP(srv shutdowner, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
}

func officeHoursLabel(s schedule.Schedule) string {
	if !s.Enabled {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d days=%07b", s.StartHour, s.StartMin, s.EndHour, s.EndMin, s.Days)
}

type gauge interface {
	BatteryVoltage() (float64, error)
}

func printState(out io.Writer, buttons gpio.Reader, g gauge, retained power.Retained) error {
	boot, pwr, err := buttons.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Fprintf(out, "BOOT: %s, POWER: %s\n", stateString(boot), stateString(pwr))

	if v, err := g.BatteryVoltage(); err != nil {
		fmt.Fprintf(out, "battery: %v\n", err)
	} else {
		fmt.Fprintf(out, "battery: %s\n", battery.NewGuardian().Check(v))
	}

	st, err := retained.Load()
	if err != nil {
		fmt.Fprintf(out, "retained: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "retained: deep_sleep=%t stable=%d last=%q\n", st.DeepSleepActive, st.StableCount, st.LastAvailability)
	return nil
}

func stateString(pressed bool) string {
	if pressed {
		return string(logic.StatePressed)
	}
	return string(logic.StateReleased)
}
