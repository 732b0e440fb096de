// Package battery converts LiPo cell voltage into a charge level and decides
// when the device must warn or shut itself down.
// This package has NO hardware dependencies. Voltages are passed in.
package battery

import (
	"fmt"
	"math"
)

// LiPo curve endpoints and the USB detection margin for the on-board 2:1 divider.
const (
	FullVolts  = 4.20
	EmptyVolts = 3.00
	USBVolts   = 4.25
)

// Default thresholds, in percent.
const (
	WarnPercent     = 15
	CriticalPercent = 5
)

// Level classifies a battery reading.
type Level string

const (
	LevelUSB      Level = "USB"
	LevelOK       Level = "OK"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Reading is one classified battery sample.
type Reading struct {
	Volts   float64
	Percent int
	Level   Level
}

func (r Reading) String() string {
	return fmt.Sprintf("%.2fV %d%% %s", r.Volts, r.Percent, r.Level)
}

// Percent maps a cell voltage onto 0-100, linear between EmptyVolts and FullVolts.
// The voltage is rounded to whole millivolts first so readings such as 3.348
// do not lose a percent to float error.
func Percent(volts float64) int {
	mv := int(math.Round(volts * 1000))
	full := int(math.Round(FullVolts * 1000))
	empty := int(math.Round(EmptyVolts * 1000))
	if mv >= full {
		return 100
	}
	if mv <= empty {
		return 0
	}
	return (mv - empty) * 100 / (full - empty)
}

// OnUSB reports whether the voltage shows the charger overshoot seen only on
// external power.
func OnUSB(volts float64) bool {
	return volts >= USBVolts
}

// Guardian applies the warning and critical thresholds. Both are inclusive.
// No hysteresis: it is sampled once per poll interval.
type Guardian struct {
	WarnPercent     int
	CriticalPercent int
}

// NewGuardian returns a Guardian with the default thresholds.
func NewGuardian() Guardian {
	return Guardian{WarnPercent: WarnPercent, CriticalPercent: CriticalPercent}
}

// Classify returns the level for a charge percentage on battery power.
func (g Guardian) Classify(percent int) Level {
	switch {
	case percent <= g.CriticalPercent:
		return LevelCritical
	case percent <= g.WarnPercent:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Check classifies a raw voltage. External power always reads LevelUSB.
func (g Guardian) Check(volts float64) Reading {
	r := Reading{Volts: volts, Percent: Percent(volts)}
	if OnUSB(volts) {
		r.Level = LevelUSB
		return r
	}
	r.Level = g.Classify(r.Percent)
	return r
}
