package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Update is a decoded schedule-update message.
type Update struct {
	Timestamp int64
	Weekly    WeeklySchedule
}

type updateWire struct {
	Timestamp *int64          `json:"timestamp"`
	Waterings json.RawMessage `json:"waterings"`
}

// ParseUpdate decodes a schedule-update payload:
//
//	{"timestamp": 1718000000, "waterings": {"0": [[6,30,15]], "3": [[23,30,90]]}}
//
// waterings may also be an array of up to seven day lists indexed from Sunday.
// Each slot is [startHour, startMinute, durationMinutes]. Field ranges are
// checked here as well, so a returned Update is always valid.
func ParseUpdate(payload []byte) (Update, error) {
	var wire updateWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Update{}, fmt.Errorf("decode schedule update: %w", err)
	}
	if wire.Timestamp == nil {
		return Update{}, errors.New("decode schedule update: missing timestamp")
	}
	raw := bytes.TrimSpace(wire.Waterings)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Update{}, errors.New("decode schedule update: missing waterings")
	}

	var weekly WeeklySchedule
	var err error
	switch raw[0] {
	case '{':
		weekly, err = decodeDayMap(raw)
	case '[':
		weekly, err = decodeDayList(raw)
	default:
		err = fmt.Errorf("waterings must be an object or array")
	}
	if err != nil {
		return Update{}, fmt.Errorf("decode schedule update: %w", err)
	}
	if err := weekly.Validate(); err != nil {
		return Update{}, err
	}
	return Update{Timestamp: *wire.Timestamp, Weekly: weekly}, nil
}

func decodeDayMap(raw []byte) (WeeklySchedule, error) {
	var days map[string][][]int
	if err := json.Unmarshal(raw, &days); err != nil {
		return WeeklySchedule{}, err
	}
	var weekly WeeklySchedule
	for key, slots := range days {
		d, err := strconv.Atoi(key)
		if err != nil || d < 0 || d >= DaysPerWeek {
			return WeeklySchedule{}, fmt.Errorf("invalid weekday key %q", key)
		}
		day, err := decodeSlots(slots)
		if err != nil {
			return WeeklySchedule{}, fmt.Errorf("weekday %d: %w", d, err)
		}
		weekly[d] = day
	}
	return weekly, nil
}

func decodeDayList(raw []byte) (WeeklySchedule, error) {
	var days [][][]int
	if err := json.Unmarshal(raw, &days); err != nil {
		return WeeklySchedule{}, err
	}
	if len(days) > DaysPerWeek {
		return WeeklySchedule{}, fmt.Errorf("%d day lists, want at most %d", len(days), DaysPerWeek)
	}
	var weekly WeeklySchedule
	for d, slots := range days {
		day, err := decodeSlots(slots)
		if err != nil {
			return WeeklySchedule{}, fmt.Errorf("weekday %d: %w", d, err)
		}
		weekly[d] = day
	}
	return weekly, nil
}

func decodeSlots(raw [][]int) ([]WateringSlot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]WateringSlot, 0, len(raw))
	for i, fields := range raw {
		if len(fields) != 3 {
			return nil, fmt.Errorf("slot %d has %d fields, want 3", i, len(fields))
		}
		out = append(out, WateringSlot{
			StartHour:       fields[0],
			StartMinute:     fields[1],
			DurationMinutes: fields[2],
		})
	}
	return out, nil
}

// RequestPayload is the schedule-request body published on (re)connect.
type RequestPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// FormatRequest returns the schedule-request payload for the given version.
func FormatRequest(version int64) ([]byte, error) {
	return json.Marshal(RequestPayload{Timestamp: version})
}
