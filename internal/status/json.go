package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/sysinfo"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	State          string       `json:"state"`
	Valve          string       `json:"valve"`
	Mode           string       `json:"mode"`
	ManualOpenedAt string       `json:"manual_opened_at,omitempty"`
	WateringActive bool         `json:"watering_active"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Schedule       ScheduleJSON `json:"schedule"`
	Switch         *SwitchJSON  `json:"switch,omitempty"`
	Counts         CountsJSON   `json:"counts"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ScheduleJSON is the JSON representation of the stored schedule.
type ScheduleJSON struct {
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Slots     int    `json:"slots"`
	Rejected  int    `json:"rejected"`
}

// SwitchJSON is the JSON representation of the manual switch.
type SwitchJSON struct {
	Position string `json:"position"`
	Ready    bool   `json:"ready"`
}

// CountsJSON is the JSON representation of controller counters.
type CountsJSON struct {
	Opens            int `json:"opens"`
	Closes           int `json:"closes"`
	Timeouts         int `json:"timeouts"`
	ManualCommands   int `json:"manual_commands"`
	IgnoredCommands  int `json:"ignored_commands"`
	ActuatorFailures int `json:"actuator_failures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs          int64  `json:"tick_ms"`
	SwitchPollMs    int64  `json:"switch_poll_ms,omitempty"`
	DebounceMs      int64  `json:"debounce_ms,omitempty"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	MaxManualOpenMs int64  `json:"max_manual_open_ms"`
	Broker          string `json:"broker"`
	TopicPrefix     string `json:"topic_prefix"`
	Timezone        string `json:"timezone"`
	HTTPAddr        string `json:"http_addr,omitempty"`
}

// ValveWord returns "open" or "closed".
func ValveWord(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:          string(snap.State()),
		Valve:          ValveWord(snap.Control.ValveOpen),
		Mode:           string(snap.Control.Mode),
		WateringActive: snap.WateringActive,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Schedule: ScheduleJSON{
			Version:  snap.Schedule.Version,
			Slots:    snap.Schedule.Slots,
			Rejected: snap.Schedule.Rejected,
		},
		Counts: CountsJSON{
			Opens:            snap.Counts.Opens,
			Closes:           snap.Counts.Closes,
			Timeouts:         snap.Counts.Timeouts,
			ManualCommands:   snap.Counts.ManualCommands,
			IgnoredCommands:  snap.Counts.IgnoredCommands,
			ActuatorFailures: snap.Counts.ActuatorFailures,
		},
		Config: ConfigJSON{
			TickMs:          snap.Config.TickMs,
			SwitchPollMs:    snap.Config.SwitchPollMs,
			DebounceMs:      snap.Config.DebounceMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			MaxManualOpenMs: snap.Config.MaxManualOpenMs,
			Broker:          snap.Config.Broker,
			TopicPrefix:     snap.Config.TopicPrefix,
			Timezone:        snap.Config.Timezone,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if inner.Mode == "" {
		inner.Mode = "UNKNOWN"
	}
	if !snap.Control.ManualOpenedAt.IsZero() && snap.State() == logic.StateOpenManual {
		inner.ManualOpenedAt = snap.Control.ManualOpenedAt.UTC().Format(time.RFC3339)
	}
	if !snap.Schedule.UpdatedAt.IsZero() {
		inner.Schedule.UpdatedAt = snap.Schedule.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if snap.Switch.Enabled {
		pos := "OFF"
		if snap.Switch.On {
			pos = "ON"
		}
		inner.Switch = &SwitchJSON{Position: pos, Ready: snap.Switch.Baselined}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// Response is the reply to a {"command":"status"} request.
type Response struct {
	Temp    float64 `json:"temp"`
	Valve   string  `json:"valve"`
	Load    float64 `json:"load"`
	Uptime  int64   `json:"uptime"`
	Voltage float64 `json:"voltage"`
	Speed   float64 `json:"speed"`
}

// FormatResponse builds the status response from the valve position and a
// host reading. Floats are rounded to two decimals.
func FormatResponse(valveOpen bool, r sysinfo.Reading) []byte {
	data, _ := json.Marshal(Response{
		Temp:    round2(r.TempC),
		Valve:   ValveWord(valveOpen),
		Load:    round2(r.Load1),
		Uptime:  int64(r.Uptime / time.Second),
		Voltage: round2(r.Voltage),
		Speed:   round2(r.SpeedMHz),
	})
	return data
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
