package logic

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrActuatorTimeout is returned when an actuator call does not finish in time.
var ErrActuatorTimeout = errors.New("logic: actuator call timed out")

// Actuator is the sink the controller drives.
type Actuator interface {
	SetValveOpen(open bool) error
	SetIndicator(name string, on bool) error
}

// Options tunes the controller. Zero values select defaults.
type Options struct {
	// MaxManualOpen is the safety timeout for manual opens.
	MaxManualOpen time.Duration
	// CallTimeout bounds each actuator call. Zero disables the bound.
	CallTimeout time.Duration
	// Retries is how many times a failed valve call is retried.
	Retries int
	// NewBackOff returns the wait policy between retries.
	NewBackOff func() backoff.BackOff
}

func (o Options) withDefaults() Options {
	if o.MaxManualOpen <= 0 {
		o.MaxManualOpen = DefaultMaxManualOpen
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 5 * time.Second
			return b
		}
	}
	return o
}

// Controller owns the valve's ControlState and enforces the transitions
// between scheduled and manual control.
// Not safe for concurrent use; the run loop serializes every call.
type Controller struct {
	actuator Actuator
	opts     Options
	state    ControlState
	counts   Counts

	// inflight closes when the most recently issued actuator call returns.
	inflight chan struct{}
	// valveUnknown is set when a failed open could not be followed by a
	// confirmed close. The valve may be physically open while state says closed.
	valveUnknown bool
}

// NewController creates a controller in CLOSED_SCHEDULED. It does not touch
// the actuator; the first transition that opens the valve does.
func NewController(actuator Actuator, opts Options) *Controller {
	return &Controller{
		actuator: actuator,
		opts:     opts.withDefaults(),
		state:    ControlState{Mode: ModeScheduled},
	}
}

// State returns the collapsed state.
func (c *Controller) State() State {
	return c.state.State()
}

// ControlState returns a copy of the full state.
func (c *Controller) ControlState() ControlState {
	return c.state
}

// Counts returns a copy of the activity counters.
func (c *Controller) Counts() Counts {
	return c.counts
}

// MaxManualOpen returns the configured safety timeout.
func (c *Controller) MaxManualOpen() time.Duration {
	return c.opts.MaxManualOpen
}

// Tick reconciles the valve with the schedule at now.
//
// The safety timeout is checked first: an OPEN_MANUAL valve older than
// MaxManualOpen is closed and handed back to the schedule, and nothing else
// happens on that tick. Otherwise the schedule opens or closes a scheduled
// valve, and a manual state whose valve already matches the schedule drops
// back to scheduled mode without touching the actuator. A manual state that
// disagrees with the schedule is held.
//
// The returned transitions describe what actually happened. A non-nil error
// is an *ActuatorError the caller should surface.
func (c *Controller) Tick(now time.Time, scheduleActive bool) ([]Transition, error) {
	st := c.state.State()

	if st == StateOpenManual && now.Sub(c.state.ManualOpenedAt) > c.opts.MaxManualOpen {
		trs, err := c.moveValve(now, false, ModeScheduled, ReasonTimeout)
		if err == nil {
			c.counts.Timeouts++
		}
		return trs, err
	}

	if c.valveUnknown && !c.state.ValveOpen && !(scheduleActive && st == StateClosedScheduled) {
		if err := c.driveValve(false); err != nil {
			c.counts.ActuatorFailures++
			return nil, &ActuatorError{Open: false, Err: err}
		}
		c.valveUnknown = false
	}

	switch {
	case scheduleActive && st == StateClosedScheduled:
		return c.moveValve(now, true, ModeScheduled, ReasonSchedule)
	case !scheduleActive && st == StateOpenScheduled:
		return c.moveValve(now, false, ModeScheduled, ReasonSchedule)
	case scheduleActive && st == StateOpenManual,
		!scheduleActive && st == StateClosedManual:
		return []Transition{c.setMode(now, ModeScheduled, ReasonReconcile)}, nil
	}
	return nil, nil
}

// Command applies a manual open or close. A command matching the current
// valve position is ignored.
func (c *Controller) Command(cmd Command, now time.Time) ([]Transition, error) {
	var open bool
	switch cmd {
	case CommandOpen:
		open = true
	case CommandClose:
		open = false
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	if open == c.state.ValveOpen {
		c.counts.IgnoredCommands++
		return nil, nil
	}
	c.counts.ManualCommands++
	return c.moveValve(now, open, ModeManual, ReasonManual)
}

// moveValve drives the valve and, once the actuator confirms, commits the new
// state. A failed open is followed by a best-effort close and leaves the
// state closed; if that close is not confirmed either, later ticks repeat it.
// A failed close leaves the state open so the next tick retries.
func (c *Controller) moveValve(now time.Time, open bool, mode Mode, reason Reason) ([]Transition, error) {
	from := c.state.State()

	if err := c.driveValve(open); err != nil {
		c.counts.ActuatorFailures++
		if open {
			if cerr := c.call(func() error { return c.actuator.SetValveOpen(false) }); cerr != nil {
				c.valveUnknown = true
			}
		}
		return nil, &ActuatorError{Open: open, Err: err}
	}
	c.valveUnknown = false

	c.state.ValveOpen = open
	c.state.Mode = mode
	c.state.ManualOpenedAt = time.Time{}
	if open && mode == ModeManual {
		c.state.ManualOpenedAt = now
	}
	if open {
		c.counts.Opens++
	} else {
		c.counts.Closes++
	}

	trs := []Transition{{Timestamp: now, From: from, To: c.state.State(), Reason: reason}}

	if err := c.call(func() error { return c.actuator.SetIndicator(IndicatorValve, open) }); err != nil {
		c.counts.ActuatorFailures++
		return trs, &ActuatorError{Open: open, Err: fmt.Errorf("indicator: %w", err)}
	}
	return trs, nil
}

func (c *Controller) setMode(now time.Time, mode Mode, reason Reason) Transition {
	from := c.state.State()
	c.state.Mode = mode
	if mode == ModeScheduled {
		c.state.ManualOpenedAt = time.Time{}
	}
	return Transition{Timestamp: now, From: from, To: c.state.State(), Reason: reason}
}

// driveValve sets the valve, retrying failures. A timed-out call is still
// pending, so it is not retried.
func (c *Controller) driveValve(open bool) error {
	b := backoff.WithMaxRetries(c.opts.NewBackOff(), uint64(c.opts.Retries))
	return backoff.Retry(func() error {
		err := c.call(func() error { return c.actuator.SetValveOpen(open) })
		if errors.Is(err, ErrActuatorTimeout) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// call runs fn bounded by CallTimeout. A call that times out keeps running in
// its goroutine; GPIO writes cannot be cancelled. Calls run one at a time in
// the order they were issued, so a later call never overtakes a stalled one.
func (c *Controller) call(fn func() error) error {
	if c.opts.CallTimeout <= 0 {
		return fn()
	}
	prev := c.inflight
	finished := make(chan struct{})
	c.inflight = finished

	done := make(chan error, 1)
	go func() {
		defer close(finished)
		if prev != nil {
			<-prev
		}
		done <- fn()
	}()

	timer := time.NewTimer(c.opts.CallTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrActuatorTimeout
	}
}
