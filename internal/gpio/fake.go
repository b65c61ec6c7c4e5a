package gpio

import (
	"errors"
	"sync"
)

// IndicatorCall is one recorded SetIndicator call.
type IndicatorCall struct {
	Name string
	On   bool
}

// FakeActuator is a test double that records actuator calls.
// Safe for concurrent use, since the controller may call it from a
// timeout-guarded goroutine.
type FakeActuator struct {
	mu sync.Mutex

	// ValveCalls contains every SetValveOpen argument, in order.
	ValveCalls []bool

	// IndicatorCalls contains every SetIndicator call, in order.
	IndicatorCalls []IndicatorCall

	// ValveError, if set, will be returned by SetValveOpen.
	ValveError error

	// IndicatorError, if set, will be returned by SetIndicator.
	IndicatorError error

	// Closed tracks if Close was called
	Closed bool

	open bool
}

// NewFakeActuator creates a FakeActuator with the valve closed.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetValveOpen records the call and, on success, the valve position.
func (f *FakeActuator) SetValveOpen(open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValveCalls = append(f.ValveCalls, open)
	if f.ValveError != nil {
		return f.ValveError
	}
	f.open = open
	return nil
}

// SetIndicator records the call.
func (f *FakeActuator) SetIndicator(name string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IndicatorCalls = append(f.IndicatorCalls, IndicatorCall{Name: name, On: on})
	return f.IndicatorError
}

// ValveOpen returns the last successfully commanded valve position.
func (f *FakeActuator) ValveOpen() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, nil
}

// Valve returns a copy of the recorded valve calls.
func (f *FakeActuator) Valve() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.ValveCalls...)
}

// Indicators returns a copy of the recorded indicator calls.
func (f *FakeActuator) Indicators() []IndicatorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IndicatorCall(nil), f.IndicatorCalls...)
}

// SetValveError sets the error returned by SetValveOpen.
func (f *FakeActuator) SetValveError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValveError = err
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded calls.
func (f *FakeActuator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValveCalls = nil
	f.IndicatorCalls = nil
	f.ValveError = nil
	f.IndicatorError = nil
	f.Closed = false
}

// FakeSwitch is a test double that returns scripted switch positions.
type FakeSwitch struct {
	// Samples contains scripted positions to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeSwitch creates a FakeSwitch with the given samples.
func NewFakeSwitch(samples []bool) *FakeSwitch {
	return &FakeSwitch{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeSwitch) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}
	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the switch as closed.
func (f *FakeSwitch) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the switch to the beginning of samples.
func (f *FakeSwitch) Reset() {
	f.index = 0
	f.Closed = false
}
