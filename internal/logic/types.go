// Package logic contains the valve control state machine and the manual
// switch debouncer. It has no GPIO, MQTT, or OS dependencies; the only side
// effects are the calls made through the Actuator interface. Time is always
// injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxManualOpen is how long a manual open may last before the
// controller force-closes the valve.
const DefaultMaxManualOpen = 30000 * time.Second

// IndicatorValve is the indicator name that mirrors the valve state.
const IndicatorValve = "valve"

// ErrUnknownCommand is returned for manual commands other than open/close.
var ErrUnknownCommand = errors.New("logic: unknown manual command")

// Mode is who currently has authority over the valve.
type Mode string

const (
	ModeScheduled Mode = "SCHEDULED"
	ModeManual    Mode = "MANUAL"
)

// State collapses Mode and valve position into one value.
type State string

const (
	StateClosedScheduled State = "CLOSED_SCHEDULED"
	StateOpenScheduled   State = "OPEN_SCHEDULED"
	StateClosedManual    State = "CLOSED_MANUAL"
	StateOpenManual      State = "OPEN_MANUAL"
)

// Open reports whether the valve is open in this state.
func (s State) Open() bool {
	return s == StateOpenScheduled || s == StateOpenManual
}

// Manual reports whether this state is under manual control.
func (s State) Manual() bool {
	return s == StateClosedManual || s == StateOpenManual
}

// Command is a manual valve command.
type Command string

const (
	CommandOpen  Command = "open"
	CommandClose Command = "close"
)

// ParseCommand maps "open"/"close" to a Command.
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case CommandOpen, CommandClose:
		return Command(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Reason says what drove a transition.
type Reason string

const (
	ReasonSchedule  Reason = "SCHEDULE"  // schedule opened or closed the valve
	ReasonManual    Reason = "MANUAL"    // manual command changed the valve
	ReasonReconcile Reason = "RECONCILE" // schedule caught up with a manual state
	ReasonTimeout   Reason = "TIMEOUT"   // safety timeout closed a manual open
)

// ControlState is the controller's single authoritative state.
type ControlState struct {
	ValveOpen      bool
	Mode           Mode
	ManualOpenedAt time.Time // zero unless State() == StateOpenManual
}

// State returns the collapsed state.
func (c ControlState) State() State {
	switch {
	case c.ValveOpen && c.Mode == ModeManual:
		return StateOpenManual
	case c.ValveOpen:
		return StateOpenScheduled
	case c.Mode == ModeManual:
		return StateClosedManual
	default:
		return StateClosedScheduled
	}
}

// Transition records one state change.
type Transition struct {
	Timestamp time.Time
	From      State
	To        State
	Reason    Reason
}

// ValveChanged reports whether the transition moved the valve.
func (t Transition) ValveChanged() bool {
	return t.From.Open() != t.To.Open()
}

// Counts tracks controller activity since startup.
type Counts struct {
	Opens            int
	Closes           int
	Timeouts         int
	ManualCommands   int
	IgnoredCommands  int
	ActuatorFailures int
}

// ActuatorError reports an actuator call that failed after all retries.
type ActuatorError struct {
	Open bool // the valve position that was being commanded
	Err  error
}

func (e *ActuatorError) Error() string {
	action := "close"
	if e.Open {
		action = "open"
	}
	return fmt.Sprintf("actuator: %s valve: %v", action, e.Err)
}

func (e *ActuatorError) Unwrap() error {
	return e.Err
}

// SwitchState tracks debounce state for the manual switch input.
type SwitchState struct {
	// Current stable (debounced) position
	Stable bool
	// Pending position during debounce
	Pending bool
	// Whether a pending position is being observed
	HasPending bool
	// Time when pending position was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// SwitchInput is a single sample of the switch position.
type SwitchInput struct {
	On   bool // already inverted from raw GPIO
	Time time.Time
}
