// Package hal binds the device core to a Linux host: retained memory in a
// tmpfs file, re-exec based deep sleep, the Wi-Fi link over netlink, NTP
// time and the sysfs battery gauge.
package hal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/thefoeyouknow/Teams-Pod/internal/power"
)

// DefaultRetainedPath lives on tmpfs so it survives a process restart but
// not a power loss.
const DefaultRetainedPath = "/run/status-pod/rtc.bin"

// FileRetained stores the retained image in a single file.
type FileRetained struct {
	Path string
}

// NewFileRetained returns a FileRetained at path, or the default path.
func NewFileRetained(path string) *FileRetained {
	if path == "" {
		path = DefaultRetainedPath
	}
	return &FileRetained{Path: path}
}

// Load decodes the image. A missing file reads as ErrCorruptRetained, the
// same as an empty RTC region after power loss.
func (f *FileRetained) Load() (power.PersistentState, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return power.PersistentState{}, fmt.Errorf("%w: %s missing", power.ErrCorruptRetained, f.Path)
	}
	if err != nil {
		return power.PersistentState{}, fmt.Errorf("read retained: %w", err)
	}
	var s power.PersistentState
	if err := s.UnmarshalBinary(data); err != nil {
		return power.PersistentState{}, err
	}
	return s, nil
}

// Store replaces the image atomically.
func (f *FileRetained) Store(s power.PersistentState) error {
	img, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create retained dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, img, 0o600); err != nil {
		return fmt.Errorf("write retained: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace retained: %w", err)
	}
	return nil
}
