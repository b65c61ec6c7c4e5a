package schedule

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) int { return h*60 + m }

func TestWrappedSlotCarriesRemainderIntoNextDay(t *testing.T) {
	var w WeeklySchedule
	w[time.Tuesday] = []WateringSlot{{StartHour: 23, StartMinute: 30, DurationMinutes: 90}}

	got := WrappedSlots(&w, time.Wednesday)
	require.Len(t, got, 1)
	assert.Equal(t, WateringSlot{StartHour: 0, StartMinute: 0, DurationMinutes: 60}, got[0])

	assert.True(t, IsWateringActive(&w, time.Wednesday, at(0, 0)))
	assert.True(t, IsWateringActive(&w, time.Wednesday, at(1, 0)))
	assert.False(t, IsWateringActive(&w, time.Wednesday, at(1, 1)))
}

func TestWrappedSlotActiveBeforeMidnightOnOwnDay(t *testing.T) {
	var w WeeklySchedule
	w[time.Tuesday] = []WateringSlot{{StartHour: 23, StartMinute: 30, DurationMinutes: 90}}

	assert.False(t, IsWateringActive(&w, time.Tuesday, at(23, 29)))
	assert.True(t, IsWateringActive(&w, time.Tuesday, at(23, 30)))
	assert.True(t, IsWateringActive(&w, time.Tuesday, at(23, 59)))
}

func TestNonWrappingPreviousDaySlotIgnored(t *testing.T) {
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 8, StartMinute: 0, DurationMinutes: 30}}

	assert.Empty(t, WrappedSlots(&w, time.Tuesday))
	assert.False(t, IsWateringActive(&w, time.Tuesday, at(8, 10)))
}

func TestSundayWrapsFromSaturday(t *testing.T) {
	var w WeeklySchedule
	w[time.Saturday] = []WateringSlot{{StartHour: 22, StartMinute: 0, DurationMinutes: 180}}

	assert.Equal(t, time.Saturday, PreviousDay(time.Sunday))
	got := WrappedSlots(&w, time.Sunday)
	require.Len(t, got, 1)
	assert.Equal(t, 60, got[0].DurationMinutes)
	assert.True(t, IsWateringActive(&w, time.Sunday, at(0, 45)))
	assert.False(t, IsWateringActive(&w, time.Sunday, at(1, 1)))
}

func TestSlotEndingExactlyAtMidnightWraps(t *testing.T) {
	var w WeeklySchedule
	w[time.Friday] = []WateringSlot{{StartHour: 23, StartMinute: 0, DurationMinutes: 60}}

	got := WrappedSlots(&w, time.Saturday)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].DurationMinutes)
	assert.True(t, IsWateringActive(&w, time.Saturday, at(0, 0)))
	assert.False(t, IsWateringActive(&w, time.Saturday, at(0, 1)))
}

func TestInclusiveBoundaries(t *testing.T) {
	var w WeeklySchedule
	w[time.Thursday] = []WateringSlot{{StartHour: 8, StartMinute: 0, DurationMinutes: 30}}

	tests := []struct {
		minute int
		want   bool
	}{
		{at(7, 59), false},
		{at(8, 0), true},
		{at(8, 15), true},
		{at(8, 30), true},
		{at(8, 31), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsWateringActive(&w, time.Thursday, tt.minute), "minute %d", tt.minute)
	}
}

func TestZeroDurationSlot(t *testing.T) {
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 12, StartMinute: 0, DurationMinutes: 0}}

	assert.False(t, IsWateringActive(&w, time.Monday, at(11, 59)))
	assert.True(t, IsWateringActive(&w, time.Monday, at(12, 0)))
	assert.False(t, IsWateringActive(&w, time.Monday, at(12, 1)))
}

func TestOverlappingSlotsCollapse(t *testing.T) {
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{
		{StartHour: 6, StartMinute: 30, DurationMinutes: 60},
		{StartHour: 6, StartMinute: 0, DurationMinutes: 45},
	}

	assert.True(t, IsWateringActive(&w, time.Monday, at(6, 0)))
	assert.True(t, IsWateringActive(&w, time.Monday, at(6, 40)))
	assert.True(t, IsWateringActive(&w, time.Monday, at(7, 30)))
	assert.False(t, IsWateringActive(&w, time.Monday, at(7, 31)))
}

func TestOtherDaysInactive(t *testing.T) {
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 6, StartMinute: 0, DurationMinutes: 30}}

	assert.False(t, IsWateringActive(&w, time.Wednesday, at(6, 10)))
}

func TestActiveAtUsesLocation(t *testing.T) {
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 6, StartMinute: 0, DurationMinutes: 30}}

	loc := time.FixedZone("UTC+2", 2*60*60)
	// 2026-01-05 is a Monday.
	local := time.Date(2026, 1, 5, 6, 10, 0, 0, loc)
	assert.True(t, ActiveAt(&w, local))
	assert.False(t, ActiveAt(&w, local.UTC()))
}

func TestSlotValidate(t *testing.T) {
	tests := []struct {
		name string
		slot WateringSlot
		ok   bool
	}{
		{"valid", WateringSlot{6, 30, 15}, true},
		{"max", WateringSlot{23, 59, 0}, true},
		{"hour high", WateringSlot{24, 0, 10}, false},
		{"hour negative", WateringSlot{-1, 0, 10}, false},
		{"minute high", WateringSlot{6, 60, 10}, false},
		{"negative duration", WateringSlot{6, 0, -5}, false},
		{"week-long duration", WateringSlot{23, 30, MaxDurationMinutes}, true},
		{"duration over a week", WateringSlot{23, 30, MaxDurationMinutes + 1}, false},
		{"overflowing duration", WateringSlot{23, 30, math.MaxInt}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	assert.Equal(t, int64(0), s.Version())

	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 6, StartMinute: 0, DurationMinutes: 30}}
	now := time.Date(2026, 1, 5, 5, 0, 0, 0, time.UTC)

	require.NoError(t, s.Replace(w, 100, now))
	assert.Equal(t, int64(100), s.Version())
	assert.Equal(t, now, s.UpdatedAt())

	got, version := s.Snapshot()
	assert.Equal(t, int64(100), version)
	assert.Equal(t, w, got)
}

func TestStoreRejectsStaleAndDuplicate(t *testing.T) {
	s := NewStore()
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 6, StartMinute: 0, DurationMinutes: 30}}
	require.NoError(t, s.Replace(w, 100, time.Now()))

	var other WeeklySchedule
	other[time.Tuesday] = []WateringSlot{{StartHour: 7, StartMinute: 0, DurationMinutes: 10}}

	for _, version := range []int64{100, 99, 0} {
		err := s.Replace(other, version, time.Now())
		assert.True(t, errors.Is(err, ErrStaleSchedule), "version %d: %v", version, err)
	}

	got, version := s.Snapshot()
	assert.Equal(t, int64(100), version)
	assert.Equal(t, w, got)
}

func TestStoreRejectsInvalidSlot(t *testing.T) {
	s := NewStore()
	var w WeeklySchedule
	w[time.Friday] = []WateringSlot{
		{StartHour: 6, StartMinute: 0, DurationMinutes: 30},
		{StartHour: 25, StartMinute: 0, DurationMinutes: 30},
	}

	err := s.Replace(w, 10, time.Now())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, time.Friday, verr.Day)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, int64(0), s.Version())
	assert.False(t, s.ActiveAt(time.Date(2026, 1, 9, 6, 10, 0, 0, time.UTC)))
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	var w WeeklySchedule
	w[time.Monday] = []WateringSlot{{StartHour: 6, StartMinute: 0, DurationMinutes: 30}}
	require.NoError(t, s.Replace(w, 1, time.Now()))

	// Mutating the caller's copy must not leak into the store.
	w[time.Monday][0].StartHour = 9
	snap, _ := s.Snapshot()
	snap[time.Monday][0].StartHour = 10

	again, _ := s.Snapshot()
	assert.Equal(t, 6, again[time.Monday][0].StartHour)
}
