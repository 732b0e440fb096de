package hal

import (
	"errors"
	"fmt"
	"os"

	"github.com/thefoeyouknow/Teams-Pod/internal/gpio"
)

// Initer is a peripheral that needs bring-up before use.
type Initer interface {
	Init() error
}

// Board performs the hardware bring-up steps of a cold boot.
type Board struct {
	Latch   gpio.Latch
	Display Initer
	Power   *Power
	SDDir   string
	Audio   Initer
	Radio   Initer
}

// AssertPowerLatch holds the battery rail on.
func (b *Board) AssertPowerLatch() error {
	if b.Latch == nil {
		return errors.New("board: no power latch")
	}
	return b.Latch.Assert()
}

// ReleasePowerLatch lets the battery rail drop.
func (b *Board) ReleasePowerLatch() error {
	if b.Latch == nil {
		return errors.New("board: no power latch")
	}
	return b.Latch.Release()
}

// InitDisplay brings up the panel.
func (b *Board) InitDisplay() error {
	return initOptional("display", b.Display)
}

// InitBattery takes a first gauge reading.
func (b *Board) InitBattery() error {
	if b.Power == nil {
		return errors.New("board: no power hal")
	}
	_, err := b.Power.BatteryVoltage()
	return err
}

// MountStorage checks that the SD card directory is present.
func (b *Board) MountStorage() error {
	if b.SDDir == "" {
		return errors.New("board: no storage directory")
	}
	fi, err := os.Stat(b.SDDir)
	if err != nil {
		return fmt.Errorf("board: storage: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("board: storage %s is not a directory", b.SDDir)
	}
	return nil
}

// InitAudio brings up the speaker.
func (b *Board) InitAudio() error {
	return initOptional("audio", b.Audio)
}

// InitBLE brings up the provisioning radio.
func (b *Board) InitBLE() error {
	return initOptional("provisioning", b.Radio)
}

func initOptional(name string, i Initer) error {
	if i == nil {
		return fmt.Errorf("board: no %s", name)
	}
	if err := i.Init(); err != nil {
		return fmt.Errorf("board: %s: %w", name, err)
	}
	return nil
}
