//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the buttons from actual hardware using the Linux GPIO character device.
type RealReader struct {
	chip     *gpiocdev.Chip
	bootPin  *gpiocdev.Line
	powerPin *gpiocdev.Line
}

// NewRealReader requests the BOOT and POWER lines on the named chip.
func NewRealReader(chipName string, pinBoot, pinPower int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Buttons short the line to ground, so pull up.
	bootLine, err := chip.RequestLine(pinBoot, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request BOOT pin %d: %w", pinBoot, err)
	}

	powerLine, err := chip.RequestLine(pinPower, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		bootLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request POWER pin %d: %w", pinPower, err)
	}

	return &RealReader{
		chip:     chip,
		bootPin:  bootLine,
		powerPin: powerLine,
	}, nil
}

// Read returns the logical states of BOOT and POWER.
// Inverts raw GPIO: raw 0 = pressed.
func (r *RealReader) Read() (bool, bool, error) {
	bootRaw, err := r.bootPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read BOOT pin: %w", err)
	}

	powerRaw, err := r.powerPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read POWER pin: %w", err)
	}

	return bootRaw == 0, powerRaw == 0, nil
}

// Close releases the button lines and the chip.
func (r *RealReader) Close() error {
	var errs []error

	if r.bootPin != nil {
		if err := r.bootPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close BOOT pin: %w", err))
		}
	}
	if r.powerPin != nil {
		if err := r.powerPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close POWER pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLatch drives the VBAT power-latch line.
type RealLatch struct {
	chip *gpiocdev.Chip
	pin  int
	line *gpiocdev.Line
}

// NewRealLatch requests the latch line as an output. The line is not driven
// until Assert is called, so a deep-sleep wake never touches it.
func NewRealLatch(chipName string, pin int) (*RealLatch, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealLatch{chip: chip, pin: pin}, nil
}

// Assert drives the latch high, keeping the rail on.
func (l *RealLatch) Assert() error {
	if l.line != nil {
		return l.line.SetValue(1)
	}
	line, err := l.chip.RequestLine(l.pin, gpiocdev.AsOutput(1))
	if err != nil {
		return fmt.Errorf("request latch pin: %w", err)
	}
	l.line = line
	return nil
}

// Release drives the latch low. On battery power the device loses power.
func (l *RealLatch) Release() error {
	if l.line == nil {
		line, err := l.chip.RequestLine(l.pin, gpiocdev.AsOutput(0))
		if err != nil {
			return fmt.Errorf("request latch pin: %w", err)
		}
		l.line = line
		return nil
	}
	if err := l.line.SetValue(0); err != nil {
		return fmt.Errorf("release latch: %w", err)
	}
	return nil
}

// Close releases the line without changing its level.
func (l *RealLatch) Close() error {
	var errs []error
	if l.line != nil {
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close latch pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
