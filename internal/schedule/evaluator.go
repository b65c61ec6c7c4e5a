package schedule

import "time"

// PreviousDay returns the weekday before d, wrapping Sunday to Saturday.
func PreviousDay(d time.Weekday) time.Weekday {
	return time.Weekday((int(d) + DaysPerWeek - 1) % DaysPerWeek)
}

// WrappedSlots returns the portion of the previous day's slots that runs past
// midnight into weekday, each expressed as a slot starting at 00:00.
// Non-wrapping slots of the previous day contribute nothing.
func WrappedSlots(w *WeeklySchedule, weekday time.Weekday) []WateringSlot {
	var out []WateringSlot
	for _, slot := range w.Day(PreviousDay(weekday)) {
		if !slot.Wraps() {
			continue
		}
		out = append(out, WateringSlot{DurationMinutes: slot.End() - MinutesPerDay})
	}
	return out
}

// IsWateringActive reports whether any slot covers minuteOfDay on weekday.
// Both ends of a slot are inclusive, so a zero-length slot is active only at
// its start minute. Today's own slots are compared unclipped; the part of a
// previous-day slot that crosses midnight is covered by WrappedSlots.
func IsWateringActive(w *WeeklySchedule, weekday time.Weekday, minuteOfDay int) bool {
	for _, slot := range WrappedSlots(w, weekday) {
		if covers(slot, minuteOfDay) {
			return true
		}
	}
	for _, slot := range w.Day(weekday) {
		if covers(slot, minuteOfDay) {
			return true
		}
	}
	return false
}

func covers(slot WateringSlot, minute int) bool {
	return slot.Start() <= minute && minute <= slot.End()
}

// MinuteOfDay returns t's hour*60+minute in t's location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ActiveAt evaluates w at wall-clock time t, using t's location for the
// weekday and minute-of-day.
func ActiveAt(w *WeeklySchedule, t time.Time) bool {
	return IsWateringActive(w, t.Weekday(), MinuteOfDay(t))
}
