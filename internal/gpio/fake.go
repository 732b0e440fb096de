package gpio

import "errors"

// FakeReader is a test double that returns scripted button values.
type FakeReader struct {
	// Samples contains scripted (bootPressed, powerPressed) values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample represents a single button reading (already in logical form).
type Sample struct {
	Boot  bool // true = pressed
	Power bool // true = pressed
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Boot, sample.Power, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeLatch records latch transitions.
type FakeLatch struct {
	// Asserted is the current level.
	Asserted bool
	// Transitions records every call as "assert" or "release".
	Transitions []string
	Closed      bool
}

// Assert records an assert.
func (f *FakeLatch) Assert() error {
	f.Asserted = true
	f.Transitions = append(f.Transitions, "assert")
	return nil
}

// Release records a release.
func (f *FakeLatch) Release() error {
	f.Asserted = false
	f.Transitions = append(f.Transitions, "release")
	return nil
}

// Close marks the latch as closed.
func (f *FakeLatch) Close() error {
	f.Closed = true
	return nil
}
