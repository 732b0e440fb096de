// Package provision accepts network and platform credentials from a YAML
// drop file on the SD card. It stands in for the BLE provisioning service:
// the device shows the setup screen, the user copies provision.yaml to the
// card, and the watcher stores it and signals the core to restart.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thefoeyouknow/Teams-Pod/internal/light"
	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

// DropFile is the name looked for in the watched directory.
const DropFile = "provision.yaml"

// DefaultPoll is how often the directory is checked.
const DefaultPoll = 2 * time.Second

// Drop is the file format.
type Drop struct {
	settings.Credentials `yaml:",inline"`
	Lights               []LightEntry `yaml:"lights,omitempty"`
}

// LightEntry is a discovered fixture to cache.
type LightEntry struct {
	Name string             `yaml:"name"`
	Type settings.LightType `yaml:"type"`
	Host string             `yaml:"ip"`
}

// CredentialSaver persists credentials.
type CredentialSaver interface {
	Save(settings.Credentials) error
}

// LightSink receives the fixture list.
type LightSink interface {
	SetDevices([]light.Device)
	SaveCache() error
}

// Watcher polls Dir for the drop file.
type Watcher struct {
	Dir       string
	Creds     CredentialSaver
	Lights    LightSink
	PollEvery time.Duration
	// Notify is called once after credentials are stored.
	Notify func()

	mu      sync.Mutex
	started bool
}

// NewWatcher returns a Watcher on dir.
func NewWatcher(dir string, creds CredentialSaver, lights LightSink, notify func()) *Watcher {
	return &Watcher{Dir: dir, Creds: creds, Lights: lights, PollEvery: DefaultPoll, Notify: notify}
}

// Init checks the watched directory exists.
func (w *Watcher) Init() error {
	if w.Dir == "" {
		return errors.New("provision: no directory")
	}
	fi, err := os.Stat(w.Dir)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("provision: %s is not a directory", w.Dir)
	}
	return nil
}

// Path returns the drop file location.
func (w *Watcher) Path() string {
	return filepath.Join(w.Dir, DropFile)
}

// Check consumes the drop file if present. It reports whether credentials
// were stored.
func (w *Watcher) Check() (bool, error) {
	data, err := os.ReadFile(w.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("provision: read: %w", err)
	}

	var d Drop
	if err := yaml.Unmarshal(data, &d); err != nil {
		return false, fmt.Errorf("provision: parse %s: %w", DropFile, err)
	}
	if !d.Valid() {
		return false, fmt.Errorf("provision: %s has no ssid", DropFile)
	}
	if err := w.Creds.Save(d.Credentials); err != nil {
		return false, fmt.Errorf("provision: save credentials: %w", err)
	}
	if len(d.Lights) > 0 && w.Lights != nil {
		devs := make([]light.Device, 0, len(d.Lights))
		for _, l := range d.Lights {
			devs = append(devs, light.Device{Name: l.Name, Type: l.Type, Host: l.Host, Provisioned: true})
		}
		w.Lights.SetDevices(devs)
		if err := w.Lights.SaveCache(); err != nil {
			log.Printf("provision: light cache: %v", err)
		}
	}
	if err := os.Rename(w.Path(), w.Path()+".done"); err != nil {
		log.Printf("provision: could not retire %s: %v", DropFile, err)
	}
	log.Printf("provision: credentials stored for %q (%s, %d lights)", d.SSID, d.Platform, len(d.Lights))
	return true, nil
}

// Start polls in the background until credentials arrive or ctx ends.
// Only the first call starts a poller.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	every := w.PollEvery
	if every <= 0 {
		every = DefaultPoll
	}
	log.Printf("provision: waiting for %s", w.Path())
	go func() {
		tick := time.NewTicker(every)
		defer tick.Stop()
		for {
			ok, err := w.Check()
			if err != nil {
				log.Printf("%v", err)
			}
			if ok {
				if w.Notify != nil {
					w.Notify()
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		}
	}()
}
