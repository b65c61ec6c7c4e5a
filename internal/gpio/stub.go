//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(p Pins) (*RealActuator, error) {
	return nil, errUnsupported
}

// SetValveOpen is not implemented on non-Linux platforms.
func (a *RealActuator) SetValveOpen(open bool) error {
	return errUnsupported
}

// SetIndicator is not implemented on non-Linux platforms.
func (a *RealActuator) SetIndicator(name string, on bool) error {
	return errUnsupported
}

// ValveOpen is not implemented on non-Linux platforms.
func (a *RealActuator) ValveOpen() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (a *RealActuator) Close() error {
	return nil
}

// RealSwitch is not available on non-Linux platforms.
type RealSwitch struct{}

// NewRealSwitch returns an error on non-Linux platforms.
func NewRealSwitch(chipName string, pin int, activeLow bool) (*RealSwitch, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (s *RealSwitch) Read() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *RealSwitch) Close() error {
	return nil
}
