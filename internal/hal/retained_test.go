package hal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/thefoeyouknow/Teams-Pod/internal/power"
)

func TestFileRetainedMissingIsCorrupt(t *testing.T) {
	f := NewFileRetained(filepath.Join(t.TempDir(), "rtc.bin"))
	if _, err := f.Load(); !errors.Is(err, power.ErrCorruptRetained) {
		t.Fatalf("got %v, want ErrCorruptRetained", err)
	}
}

func TestFileRetainedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "rtc.bin")
	f := NewFileRetained(path)
	want := power.PersistentState{DeepSleepActive: true, StableCount: 4, LastAvailability: "Busy"}
	if err := f.Store(want); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileRetained(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestFileRetainedTruncatedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtc.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileRetained(path).Load(); !errors.Is(err, power.ErrCorruptRetained) {
		t.Errorf("got %v, want ErrCorruptRetained", err)
	}
}

func TestFileRetainedDrivesEngine(t *testing.T) {
	f := NewFileRetained(filepath.Join(t.TempDir(), "rtc.bin"))
	st := power.PersistentState{}
	e := power.NewEngine(&st, f)
	e.RecordPoll("Away")
	if err := e.CommitDeepSleep(); err != nil {
		t.Fatal(err)
	}

	var after power.PersistentState
	if err := power.NewEngine(&after, f).Boot(power.ResetDeepSleep); err != nil {
		t.Fatal(err)
	}
	if !after.DeepSleepActive || after.LastAvailability != "Away" {
		t.Errorf("after reset: %+v", after)
	}
}

func TestDefaultRetainedPath(t *testing.T) {
	if got := NewFileRetained("").Path; got != DefaultRetainedPath {
		t.Errorf("got %q", got)
	}
}
