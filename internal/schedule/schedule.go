// Package schedule holds the weekly watering program and decides whether a
// scheduled watering is active at a given moment.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// DaysPerWeek is the number of weekdays in a WeeklySchedule.
const DaysPerWeek = 7

// MaxDurationMinutes bounds a slot's duration to one week. Only the part that
// reaches the next day is ever watered.
const MaxDurationMinutes = DaysPerWeek * MinutesPerDay

// ErrStaleSchedule is returned when an update is not newer than the stored version.
var ErrStaleSchedule = errors.New("schedule: update is not newer than stored version")

// WateringSlot is one watering window on one weekday.
// The duration may carry the window past midnight.
type WateringSlot struct {
	StartHour       int
	StartMinute     int
	DurationMinutes int
}

// Start returns the slot start as minute-of-day.
func (s WateringSlot) Start() int {
	return s.StartHour*60 + s.StartMinute
}

// End returns start+duration as minute-of-day. Values >= MinutesPerDay wrap.
func (s WateringSlot) End() int {
	return s.Start() + s.DurationMinutes
}

// Wraps reports whether the slot runs past 23:59.
func (s WateringSlot) Wraps() bool {
	return s.End() >= MinutesPerDay
}

func (s WateringSlot) String() string {
	return fmt.Sprintf("%02d:%02d+%dm", s.StartHour, s.StartMinute, s.DurationMinutes)
}

// Validate checks field ranges.
func (s WateringSlot) Validate() error {
	if s.StartHour < 0 || s.StartHour > 23 {
		return fmt.Errorf("start hour %d out of range [0,23]", s.StartHour)
	}
	if s.StartMinute < 0 || s.StartMinute > 59 {
		return fmt.Errorf("start minute %d out of range [0,59]", s.StartMinute)
	}
	if s.DurationMinutes < 0 || s.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("duration %d out of range [0,%d]", s.DurationMinutes, MaxDurationMinutes)
	}
	return nil
}

// WeeklySchedule maps time.Weekday (0=Sunday..6=Saturday) to that day's slots.
// Slots within a day are unordered and may overlap.
type WeeklySchedule [DaysPerWeek][]WateringSlot

// Day returns the slots for the given weekday.
func (w *WeeklySchedule) Day(d time.Weekday) []WateringSlot {
	return w[int(d)%DaysPerWeek]
}

// SlotCount returns the total number of slots across all days.
func (w *WeeklySchedule) SlotCount() int {
	n := 0
	for _, day := range w {
		n += len(day)
	}
	return n
}

// Clone returns a deep copy.
func (w *WeeklySchedule) Clone() WeeklySchedule {
	var out WeeklySchedule
	for i, day := range w {
		if day == nil {
			continue
		}
		out[i] = append([]WateringSlot(nil), day...)
	}
	return out
}

// ValidationError identifies the first invalid slot in a schedule.
type ValidationError struct {
	Day   time.Weekday
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schedule: %s slot %d: %v", e.Day, e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate returns a *ValidationError for the first invalid slot, or nil.
func (w *WeeklySchedule) Validate() error {
	for d, day := range w {
		for i, slot := range day {
			if err := slot.Validate(); err != nil {
				return &ValidationError{Day: time.Weekday(d), Index: i, Err: err}
			}
		}
	}
	return nil
}
