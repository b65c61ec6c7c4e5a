// Package mqtt is the transport adapter between the broker and the valve
// controller. Broker callbacks only enqueue Inbound messages; the run loop
// consumes them and publishes through Publisher.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
)

// DefaultTopicPrefix is the topic namespace shared with the scheduling backend.
const DefaultTopicPrefix = "indra"

// ErrNotConnected is returned for messages that are not worth buffering while
// the broker connection is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// ErrBadManual is returned by ParseManual for payloads that are neither a
// valve command nor a status request.
var ErrBadManual = errors.New("mqtt: malformed manual message")

// Topics holds the full topic names used by the daemon.
type Topics struct {
	Schedule        string // inbound weekly schedule
	Manual          string // inbound manual command or status request
	ScheduleRequest string // outbound request for the current schedule
	Status          string // outbound status response
	Events          string // outbound valve transitions
	System          string // outbound lifecycle events and LWT
}

// NewTopics builds the topic set under prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Schedule:        prefix + "/schedule",
		Manual:          prefix + "/manual",
		ScheduleRequest: prefix + "/schedule_request",
		Status:          prefix + "/status",
		Events:          prefix + "/events",
		System:          prefix + "/system",
	}
}

// Publisher publishes outbound messages.
type Publisher interface {
	// PublishScheduleRequest asks the backend for a schedule newer than version.
	PublishScheduleRequest(version int64) error

	// PublishStatus sends a pre-formatted status response.
	PublishStatus(payload []byte) error

	// PublishTransition sends a valve state transition.
	PublishTransition(tr logic.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// InboundKind identifies what arrived from the transport.
type InboundKind int

const (
	InboundSchedule InboundKind = iota + 1
	InboundManual
	InboundConnected
	InboundDisconnected
)

func (k InboundKind) String() string {
	switch k {
	case InboundSchedule:
		return "schedule"
	case InboundManual:
		return "manual"
	case InboundConnected:
		return "connected"
	case InboundDisconnected:
		return "disconnected"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// Inbound is one message or connection event queued for the run loop.
type Inbound struct {
	Kind     InboundKind
	Payload  []byte
	Received time.Time
}

// ManualRequest is a decoded manual-topic message. Exactly one of Status or
// Command is meaningful.
type ManualRequest struct {
	Status  bool
	Command logic.Command
}

type manualMessage struct {
	Valve   *string `json:"valve"`
	Command *string `json:"command"`
}

// ParseManual decodes {"valve":"open"|"close"} or {"command":"status"}.
func ParseManual(payload []byte) (ManualRequest, error) {
	var m manualMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return ManualRequest{}, fmt.Errorf("%w: %v", ErrBadManual, err)
	}

	switch {
	case m.Valve != nil && m.Command != nil:
		return ManualRequest{}, fmt.Errorf("%w: both valve and command set", ErrBadManual)
	case m.Command != nil:
		if *m.Command != "status" {
			return ManualRequest{}, fmt.Errorf("%w: unknown command %q", ErrBadManual, *m.Command)
		}
		return ManualRequest{Status: true}, nil
	case m.Valve != nil:
		cmd, err := logic.ParseCommand(*m.Valve)
		if err != nil {
			return ManualRequest{}, fmt.Errorf("%w: %v", ErrBadManual, err)
		}
		return ManualRequest{Command: cmd}, nil
	}
	return ManualRequest{}, fmt.Errorf("%w: no valve or command field", ErrBadManual)
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "ALERT"
	Reason     string // e.g., "SIGTERM", "ACTUATOR" (optional)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventAlert       = "ALERT"
)

// TransitionPayload is the JSON envelope for a valve transition.
type TransitionPayload struct {
	Valve ValvePayload `json:"valve"`
}

// ValvePayload contains the transition details.
type ValvePayload struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
	Open      bool   `json:"open"`
	Mode      string `json:"mode"`
}

// FormatTransition creates the JSON payload for a valve transition.
func FormatTransition(tr logic.Transition) ([]byte, error) {
	mode := logic.ModeScheduled
	if tr.To.Manual() {
		mode = logic.ModeManual
	}
	payload := TransitionPayload{
		Valve: ValvePayload{
			Timestamp: tr.Timestamp.UTC().Format(time.RFC3339),
			From:      string(tr.From),
			To:        string(tr.To),
			Reason:    string(tr.Reason),
			Open:      tr.To.Open(),
			Mode:      string(mode),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED, ALERT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
