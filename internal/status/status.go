// Package status provides a thread-safe view of the valve controller for the
// HTTP server, heartbeats and status responses. The run loop is the only writer.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs          int64
	SwitchPollMs    int64 // 0 when no switch is wired
	DebounceMs      int64
	HeartbeatMs     int64
	MaxManualOpenMs int64
	Broker          string
	TopicPrefix     string
	Timezone        string
	HTTPAddr        string
}

// ScheduleInfo describes the stored schedule, not its contents.
type ScheduleInfo struct {
	Version   int64
	UpdatedAt time.Time // zero until the first accepted update
	Slots     int
	Rejected  int
}

// SwitchInfo describes the manual hardware switch.
type SwitchInfo struct {
	Enabled   bool
	On        bool
	Baselined bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Control        logic.ControlState
	WateringActive bool
	Counts         logic.Counts
	Schedule       ScheduleInfo
	Switch         SwitchInfo
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// State returns the collapsed controller state.
func (s Snapshot) State() logic.State {
	return s.Control.State()
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// ManualOpenFor returns how long a manual open has lasted, or 0.
func (s Snapshot) ManualOpenFor() time.Duration {
	if s.State() != logic.StateOpenManual || s.Control.ManualOpenedAt.IsZero() {
		return 0
	}
	return s.Now.Sub(s.Control.ManualOpenedAt)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Control:   logic.ControlState{Mode: logic.ModeScheduled},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update sets controller state, counters and whether the schedule is active.
// Called from runLoop after every tick and command.
func (t *Tracker) Update(control logic.ControlState, counts logic.Counts, wateringActive bool) {
	t.mu.Lock()
	t.snap.Control = control
	t.snap.Counts = counts
	t.snap.WateringActive = wateringActive
	t.mu.Unlock()
}

// SetSchedule records an accepted schedule update.
func (t *Tracker) SetSchedule(version int64, updatedAt time.Time, slots int) {
	t.mu.Lock()
	t.snap.Schedule.Version = version
	t.snap.Schedule.UpdatedAt = updatedAt
	t.snap.Schedule.Slots = slots
	t.mu.Unlock()
}

// RecordRejectedSchedule counts a stale or invalid schedule update.
func (t *Tracker) RecordRejectedSchedule() {
	t.mu.Lock()
	t.snap.Schedule.Rejected++
	t.mu.Unlock()
}

// SetSwitch sets the manual switch state.
func (t *Tracker) SetSwitch(info SwitchInfo) {
	t.mu.Lock()
	t.snap.Switch = info
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	s.Now = now()
	return s
}
