//go:build !linux

package gpio

import "errors"

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chipName string, pinBoot, pinPower int) (*RealReader, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() (bool, bool, error) {
	return false, false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// RealLatch is not available on non-Linux platforms.
type RealLatch struct{}

// NewRealLatch returns an error on non-Linux platforms.
func NewRealLatch(chipName string, pin int) (*RealLatch, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Assert is not implemented on non-Linux platforms.
func (l *RealLatch) Assert() error { return errors.New("gpio: not supported") }

// Release is not implemented on non-Linux platforms.
func (l *RealLatch) Release() error { return errors.New("gpio: not supported") }

// Close is not implemented on non-Linux platforms.
func (l *RealLatch) Close() error { return nil }
