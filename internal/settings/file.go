package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file on the SD card.
const FileName = "config.yaml"

// FileStore persists Settings as YAML under a mount point.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at the SD card mount dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the settings file location.
func (f *FileStore) Path() string {
	return filepath.Join(f.Dir, FileName)
}

// Available reports whether the mount point exists.
func (f *FileStore) Available() bool {
	st, err := os.Stat(f.Dir)
	return err == nil && st.IsDir()
}

// Load reads the settings file. Fields missing from the file keep their
// defaults. A missing file returns an error wrapping os.ErrNotExist.
func (f *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Save writes the settings file atomically.
func (f *FileStore) Save(s Settings) error {
	if !f.Available() {
		return fmt.Errorf("save settings: %w", os.ErrNotExist)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeAtomic(f.Path(), data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("rename %s: %w", filepath.Base(path), err), os.Remove(tmp))
	}
	return nil
}
