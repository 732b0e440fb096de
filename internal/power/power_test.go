package power

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newEngine(t *testing.T, st PersistentState) (*Engine, *PersistentState, *MemRetained) {
	t.Helper()
	mem := NewMemRetained()
	state := st
	return NewEngine(&state, mem), &state, mem
}

func batteryInput() Input {
	return Input{
		UntilNextPoll: 90 * time.Second,
		PollInterval:  120 * time.Second,
		OfficeOpen:    true,
	}
}

func TestDecideUSBNeverSleeps(t *testing.T) {
	for stable := 0; stable <= 10; stable++ {
		for _, until := range []time.Duration{0, 500 * time.Millisecond, time.Minute, time.Hour} {
			for _, open := range []bool{true, false} {
				e, _, _ := newEngine(t, PersistentState{StableCount: uint8(stable)})
				in := Input{OnUSB: true, UntilNextPoll: until, PollInterval: time.Minute, OfficeOpen: open, UntilOfficeOpen: time.Hour}
				d := e.Decide(in)
				if d.Mode != Stay {
					t.Fatalf("stable=%d until=%v open=%v: got %s, want stay", stable, until, open, d)
				}
			}
		}
	}
}

func TestDecideLightSleepBeforeThreshold(t *testing.T) {
	e, _, _ := newEngine(t, PersistentState{StableCount: DeepSleepThreshold - 1})
	d := e.Decide(batteryInput())
	if d.Mode != LightSleep {
		t.Fatalf("got %s, want light sleep", d)
	}
	if d.Duration != 90*time.Second-LightSleepMargin {
		t.Errorf("duration: got %v", d.Duration)
	}
	if !d.Wake.Has(WakeOnTimer) || !d.Wake.Has(WakeOnBoot) || !d.Wake.Has(WakeOnPower) {
		t.Errorf("wake sources: got %s, want timer+boot+power", d.Wake)
	}
}

func TestDecideStaysWhenPollImminent(t *testing.T) {
	e, _, _ := newEngine(t, PersistentState{})
	in := batteryInput()
	in.UntilNextPoll = 999 * time.Millisecond
	if d := e.Decide(in); d.Mode != Stay {
		t.Errorf("got %s, want stay", d)
	}
	in.UntilNextPoll = time.Second
	if d := e.Decide(in); d.Mode != LightSleep {
		t.Errorf("got %s, want light sleep at exactly 1s", d)
	}
}

func TestDecideDeepSleepAtThreshold(t *testing.T) {
	e, _, _ := newEngine(t, PersistentState{StableCount: DeepSleepThreshold})
	d := e.Decide(batteryInput())
	if d.Mode != DeepSleep {
		t.Fatalf("got %s, want deep sleep", d)
	}
	if d.Duration != 120*time.Second {
		t.Errorf("duration: got %v, want one poll interval", d.Duration)
	}
}

func TestDecideDeepSleepOutsideOfficeHours(t *testing.T) {
	e, _, _ := newEngine(t, PersistentState{StableCount: DeepSleepThreshold})
	in := batteryInput()
	in.OfficeOpen = false
	in.UntilOfficeOpen = 13*time.Hour + 7*time.Second

	d := e.Decide(in)
	if d.Mode != DeepSleep {
		t.Fatalf("got %s, want deep sleep", d)
	}
	if d.Duration != in.UntilOfficeOpen {
		t.Errorf("duration: got %v, want %v", d.Duration, in.UntilOfficeOpen)
	}
	if !strings.Contains(d.Reason, "office") {
		t.Errorf("reason: got %q", d.Reason)
	}
}

func TestDecideOfficeClosedSleepsBeforeThreshold(t *testing.T) {
	e, _, _ := newEngine(t, PersistentState{})
	in := batteryInput()
	in.OfficeOpen = false
	in.UntilOfficeOpen = time.Hour
	if d := e.Decide(in); d.Mode != DeepSleep || d.Duration != time.Hour {
		t.Errorf("got %s, want deep sleep 1h", d)
	}
}

func TestRecordPoll(t *testing.T) {
	e, st, _ := newEngine(t, PersistentState{})

	if !e.RecordPoll("Available") {
		t.Error("first poll should be a change")
	}
	if st.StableCount != 0 {
		t.Errorf("stable after change: got %d, want 0", st.StableCount)
	}
	for i := 1; i <= 3; i++ {
		if e.RecordPoll("Available") {
			t.Errorf("poll %d: unexpected change", i)
		}
		if int(st.StableCount) != i {
			t.Errorf("poll %d: stable got %d", i, st.StableCount)
		}
	}
	if !e.RecordPoll("Busy") || st.StableCount != 0 || st.LastAvailability != "Busy" {
		t.Errorf("change not recorded: %+v", *st)
	}
}

func TestRecordPollSaturates(t *testing.T) {
	e, st, _ := newEngine(t, PersistentState{StableCount: 255, LastAvailability: "Away"})
	e.RecordPoll("Away")
	if st.StableCount != 255 {
		t.Errorf("got %d, want 255", st.StableCount)
	}
}

func TestNoteUserInput(t *testing.T) {
	e, st, _ := newEngine(t, PersistentState{StableCount: 2})
	e.NoteUserInput()
	if st.StableCount != 0 {
		t.Errorf("got %d, want 0", st.StableCount)
	}
}

func TestBootColdZeroesRetained(t *testing.T) {
	mem := NewMemRetained()
	if err := mem.Store(PersistentState{DeepSleepActive: true, StableCount: 9, LastAvailability: "Busy"}); err != nil {
		t.Fatal(err)
	}

	for _, reason := range []ResetReason{ResetPowerOn, ResetSoftware, ResetPanic, ResetWatchdog, ResetBrownout, ResetUnknown} {
		st := PersistentState{}
		e := NewEngine(&st, mem)
		if err := e.Boot(reason); err != nil {
			t.Fatalf("%s: %v", reason, err)
		}
		if e.FastResumeArmed() {
			t.Errorf("%s: fast resume armed after cold reset", reason)
		}
		got, err := mem.Load()
		if err != nil {
			t.Fatalf("%s: load: %v", reason, err)
		}
		if got != (PersistentState{}) {
			t.Errorf("%s: retained not zeroed: %+v", reason, got)
		}
	}
}

func TestCommitThenDeepSleepBootRoundTrip(t *testing.T) {
	mem := NewMemRetained()
	st := PersistentState{}
	e := NewEngine(&st, mem)
	e.RecordPoll("DoNotDisturb")
	e.RecordPoll("DoNotDisturb")
	if err := e.CommitDeepSleep(); err != nil {
		t.Fatal(err)
	}

	// Simulated reset: fresh volatile state over the same region.
	after := PersistentState{}
	e2 := NewEngine(&after, mem)
	if err := e2.Boot(ResetDeepSleep); err != nil {
		t.Fatal(err)
	}
	want := PersistentState{DeepSleepActive: true, StableCount: 1, LastAvailability: "DoNotDisturb"}
	if after != want {
		t.Errorf("round trip: got %+v, want %+v", after, want)
	}
	if !e2.FastResumeArmed() {
		t.Error("fast resume should be armed")
	}
}

func TestBootDeepSleepAfterPowerLoss(t *testing.T) {
	mem := NewMemRetained()
	st := PersistentState{StableCount: 4}
	e := NewEngine(&st, mem)
	if err := e.Boot(ResetDeepSleep); !errors.Is(err, ErrCorruptRetained) {
		t.Fatalf("got %v, want ErrCorruptRetained", err)
	}
	if st != (PersistentState{}) {
		t.Errorf("state not zeroed: %+v", st)
	}
}

func TestCommitFailureLeavesFlagClear(t *testing.T) {
	e, st, mem := newEngine(t, PersistentState{})
	mem.StoreError = errors.New("rtc write failed")
	if err := e.CommitDeepSleep(); err == nil {
		t.Fatal("expected error")
	}
	if st.DeepSleepActive {
		t.Error("DeepSleepActive set without a persisted commit")
	}
}

func TestEndDeepSleepCycle(t *testing.T) {
	e, st, mem := newEngine(t, PersistentState{DeepSleepActive: true, StableCount: 5, LastAvailability: "Away"})
	if err := e.EndDeepSleepCycle(); err != nil {
		t.Fatal(err)
	}
	if st.DeepSleepActive || st.StableCount != 0 {
		t.Errorf("not cleared: %+v", *st)
	}
	got, _ := mem.Load()
	if got.DeepSleepActive || got.LastAvailability != "Away" {
		t.Errorf("retained: %+v", got)
	}
}

func TestImageRoundTripAndCorruption(t *testing.T) {
	in := PersistentState{DeepSleepActive: true, StableCount: 3, LastAvailability: "BeRightBack"}
	img, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(img) != ImageSize {
		t.Fatalf("image size: got %d, want %d", len(img), ImageSize)
	}

	var out PersistentState
	if err := out.UnmarshalBinary(img); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	img[10] ^= 0xFF
	if err := out.UnmarshalBinary(img); !errors.Is(err, ErrCorruptRetained) {
		t.Errorf("flipped byte: got %v, want ErrCorruptRetained", err)
	}
}

func TestSetAvailabilityTruncates(t *testing.T) {
	var s PersistentState
	s.SetAvailability(strings.Repeat("x", 40))
	if len(s.LastAvailability) != MaxAvailability {
		t.Errorf("len: got %d, want %d", len(s.LastAvailability), MaxAvailability)
	}
	if _, err := s.MarshalBinary(); err != nil {
		t.Errorf("marshal after truncate: %v", err)
	}
}
