// Package schedule evaluates the office-hours window that decides whether the
// device should be actively polling or deep sleeping until the window reopens.
// This package has NO I/O. Wall-clock time is always passed in, already
// converted to the configured timezone.
package schedule

import (
	"fmt"
	"time"
)

// Fallback is returned by UntilOpen when no masked day opens within the scan.
const Fallback = time.Hour

// scanDays covers a full week plus the remainder of the current day.
const scanDays = 8

// minSyncedYear is the earliest year accepted as a synchronised wall clock.
// An unsynced RTC boots at the epoch.
const minSyncedYear = 2020

// Day bits, bit 0 = Monday.
const (
	Monday uint8 = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday
	AllDays  = Weekdays | Saturday | Sunday
)

// Schedule is the stored office-hours configuration.
type Schedule struct {
	Enabled   bool  `yaml:"enabled"`
	StartHour int   `yaml:"start_hour"`
	StartMin  int   `yaml:"start_min"`
	EndHour   int   `yaml:"end_hour"`
	EndMin    int   `yaml:"end_min"`
	Days      uint8 `yaml:"days"`
}

// Default returns a disabled 08:00-17:00 Monday-Friday schedule.
func Default() Schedule {
	return Schedule{
		StartHour: 8,
		EndHour:   17,
		Days:      Weekdays,
	}
}

// Validate reports whether the hour/minute fields are in range.
func (s Schedule) Validate() error {
	if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 23 {
		return fmt.Errorf("schedule: hour out of range (start=%d end=%d)", s.StartHour, s.EndHour)
	}
	if s.StartMin < 0 || s.StartMin > 59 || s.EndMin < 0 || s.EndMin > 59 {
		return fmt.Errorf("schedule: minute out of range (start=%d end=%d)", s.StartMin, s.EndMin)
	}
	if s.Days&^AllDays != 0 {
		return fmt.Errorf("schedule: day mask %#x has bits above Sunday", s.Days)
	}
	return nil
}

// Synced reports whether now looks like a synchronised wall clock.
func Synced(now time.Time) bool {
	return !now.IsZero() && now.Year() >= minSyncedYear
}

// IsOpen reports whether the device should be awake at now.
// A disabled schedule is always open. An unsynced clock fails open.
// A window whose end precedes its start runs overnight and belongs to the
// day it started on. Equal start and end means the whole masked day.
func (s Schedule) IsOpen(now time.Time) bool {
	if !s.Enabled || !Synced(now) {
		return true
	}

	start := s.StartHour*60 + s.StartMin
	end := s.EndHour*60 + s.EndMin
	mins := now.Hour()*60 + now.Minute()

	switch {
	case start == end:
		return s.dayEnabled(now.Weekday())
	case start < end:
		return s.dayEnabled(now.Weekday()) && mins >= start && mins < end
	default:
		if mins >= start {
			return s.dayEnabled(now.Weekday())
		}
		if mins < end {
			return s.dayEnabled(now.AddDate(0, 0, -1).Weekday())
		}
		return false
	}
}

// UntilOpen returns how long until the window next opens, rounded up to a
// whole second. It returns 0 when the window is open now and Fallback when
// the day mask selects nothing within the scan.
func (s Schedule) UntilOpen(now time.Time) time.Duration {
	if s.IsOpen(now) {
		return 0
	}

	// An all-day window opens at midnight.
	hh, mm := s.StartHour, s.StartMin
	if hh == s.EndHour && mm == s.EndMin {
		hh, mm = 0, 0
	}
	y, m, d := now.Date()
	for i := 0; i < scanDays; i++ {
		at := time.Date(y, m, d+i, hh, mm, 0, 0, now.Location())
		if !at.After(now) || !s.dayEnabled(at.Weekday()) {
			continue
		}
		wait := at.Sub(now)
		if r := wait % time.Second; r != 0 {
			wait += time.Second - r
		}
		return wait
	}
	return Fallback
}

func (s Schedule) dayEnabled(wd time.Weekday) bool {
	bit := (int(wd) + 6) % 7
	return s.Days&(1<<bit) != 0
}
