package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/sysinfo"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestNewTracker(t *testing.T) {
	cfg := Config{TickMs: 10000, Broker: "ssl://broker:8883", HTTPAddr: ":80"}
	tr := NewTracker(t0, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(t0) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, t0)
	}
	if snap.Config.TickMs != 10000 {
		t.Errorf("Config.TickMs: got %d, want 10000", snap.Config.TickMs)
	}
	if snap.State() != logic.StateClosedScheduled {
		t.Errorf("initial state: got %s, want CLOSED_SCHEDULED", snap.State())
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Schedule.Version != 0 {
		t.Errorf("initial schedule version: got %d", snap.Schedule.Version)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(t0, Config{})

	tr.Update(logic.ControlState{ValveOpen: true, Mode: logic.ModeManual, ManualOpenedAt: t0},
		logic.Counts{Opens: 3, ManualCommands: 1}, false)

	snap := tr.Snapshot()
	if snap.State() != logic.StateOpenManual {
		t.Errorf("state: got %s, want OPEN_MANUAL", snap.State())
	}
	if snap.Counts.Opens != 3 {
		t.Errorf("Counts.Opens: got %d, want 3", snap.Counts.Opens)
	}
	if snap.WateringActive {
		t.Error("expected WateringActive=false")
	}
}

func TestScheduleTracking(t *testing.T) {
	tr := NewTracker(t0, Config{})
	tr.SetSchedule(1700000000, t0.Add(time.Minute), 5)
	tr.RecordRejectedSchedule()
	tr.RecordRejectedSchedule()

	s := tr.Snapshot().Schedule
	if s.Version != 1700000000 || s.Slots != 5 || s.Rejected != 2 {
		t.Errorf("unexpected schedule info: %+v", s)
	}
	if !s.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("UpdatedAt: got %v", s.UpdatedAt)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(t0, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetworkIsCopied(t *testing.T) {
	tr := NewTracker(t0, Config{})
	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	snap.Network.IP = "changed"
	if tr.Snapshot().Network.IP != "192.168.1.42" {
		t.Error("mutating a snapshot's network should not affect the tracker")
	}
}

func TestSnapshotUsesClock(t *testing.T) {
	tr := NewTracker(t0, Config{})
	tr.SetClock(fixedClock(t0.Add(15 * time.Minute)))

	snap := tr.Snapshot()
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestManualOpenFor(t *testing.T) {
	snap := Snapshot{
		Control: logic.ControlState{ValveOpen: true, Mode: logic.ModeManual, ManualOpenedAt: t0},
		Now:     t0.Add(90 * time.Second),
	}
	if snap.ManualOpenFor() != 90*time.Second {
		t.Errorf("ManualOpenFor: got %v", snap.ManualOpenFor())
	}

	snap.Control.Mode = logic.ModeScheduled
	if snap.ManualOpenFor() != 0 {
		t.Error("scheduled open should report 0")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(t0, Config{})
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.Update(logic.ControlState{ValveOpen: i%2 == 0, Mode: logic.ModeScheduled}, logic.Counts{Opens: i}, i%2 == 0)
			tr.SetMQTTConnected(i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
}

func testSnapshot() Snapshot {
	return Snapshot{
		Control:        logic.ControlState{ValveOpen: true, Mode: logic.ModeManual, ManualOpenedAt: t0.Add(time.Hour)},
		WateringActive: false,
		Counts:         logic.Counts{Opens: 2, Closes: 1, Timeouts: 1, ManualCommands: 4, IgnoredCommands: 1},
		Schedule:       ScheduleInfo{Version: 1767225600, UpdatedAt: t0.Add(30 * time.Minute), Slots: 3},
		Switch:         SwitchInfo{Enabled: true, On: true, Baselined: true},
		StartTime:      t0,
		Now:            t0.Add(2 * time.Hour),
		MQTTConnected:  true,
		Config: Config{
			TickMs:          10000,
			SwitchPollMs:    100,
			DebounceMs:      250,
			HeartbeatMs:     900000,
			MaxManualOpenMs: 30000000,
			Broker:          "ssl://broker:8883",
			TopicPrefix:     "indra",
			Timezone:        "Local",
		},
	}
}

func TestFormatJSON(t *testing.T) {
	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(testSnapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if s.State != "OPEN_MANUAL" || s.Valve != "open" || s.Mode != "MANUAL" {
		t.Errorf("state fields: %s %s %s", s.State, s.Valve, s.Mode)
	}
	if s.ManualOpenedAt != "2026-01-01T01:00:00Z" {
		t.Errorf("manual_opened_at: got %s", s.ManualOpenedAt)
	}
	if s.UptimeSeconds != 7200 {
		t.Errorf("uptime_seconds: got %d", s.UptimeSeconds)
	}
	if s.Schedule.Version != 1767225600 || s.Schedule.UpdatedAt != "2026-01-01T00:30:00Z" {
		t.Errorf("schedule: %+v", s.Schedule)
	}
	if s.Switch == nil || s.Switch.Position != "ON" || !s.Switch.Ready {
		t.Errorf("switch: %+v", s.Switch)
	}
	if s.Counts.ManualCommands != 4 || s.Counts.Timeouts != 1 {
		t.Errorf("counts: %+v", s.Counts)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event/reason")
	}
	if s.Network != nil {
		t.Error("network should be omitted when nil")
	}
}

func TestFormatJSONOmitsOptionalFields(t *testing.T) {
	snap := Snapshot{
		Control:   logic.ControlState{Mode: logic.ModeScheduled},
		StartTime: t0,
		Now:       t0,
	}
	data := string(FormatJSON(snap))
	for _, key := range []string{`"switch"`, `"manual_opened_at"`, `"updated_at"`, `"network"`} {
		if strings.Contains(data, key) {
			t.Errorf("expected %s to be omitted:\n%s", key, data)
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "10.0.0.5", Status: "connected", SSID: "garden"}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: %s/%s", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "garden" {
		t.Errorf("network: %+v", parsed.Status.Network)
	}
}

func TestFormatResponse(t *testing.T) {
	r := sysinfo.Reading{
		TempC:    48.3123,
		Load1:    0.5,
		Uptime:   3723*time.Second + 400*time.Millisecond,
		Voltage:  1.2,
		SpeedMHz: 1500,
	}

	got := string(FormatResponse(false, r))
	want := `{"temp":48.31,"valve":"closed","load":0.5,"uptime":3723,"voltage":1.2,"speed":1500}`
	if got != want {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", got, want)
	}

	var parsed Response
	json.Unmarshal(FormatResponse(true, sysinfo.Reading{}), &parsed)
	if parsed.Valve != "open" {
		t.Errorf("valve: got %s, want open", parsed.Valve)
	}
}
