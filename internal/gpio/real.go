//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealActuator drives actual hardware using Linux GPIO character device.
// Line access is serialized, so a call left running after a timeout cannot
// interleave with the next one.
type RealActuator struct {
	mu          sync.Mutex
	chip        *gpiocdev.Chip
	valve       *gpiocdev.Line
	leds        map[string]*gpiocdev.Line
	closeOnExit bool
}

// NewRealActuator requests the valve and LED lines as outputs, all initially off.
func NewRealActuator(p Pins) (*RealActuator, error) {
	chipName := p.Chip
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	a := &RealActuator{
		chip:        chip,
		leds:        make(map[string]*gpiocdev.Line),
		closeOnExit: p.CloseOnExit,
	}

	valveOpts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if p.ValveActiveLow {
		valveOpts = append(valveOpts, gpiocdev.AsActiveLow)
	}
	a.valve, err = chip.RequestLine(p.Valve, valveOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("request valve pin %d: %w", p.Valve, err)
	}

	for name, pin := range p.Indicators {
		if pin < 0 {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request %s led pin %d: %w", name, pin, err)
		}
		a.leds[name] = line
	}

	return a, nil
}

// SetValveOpen sets the logical valve line.
func (a *RealActuator) SetValveOpen(open bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.valve.SetValue(boolToValue(open)); err != nil {
		return fmt.Errorf("set valve pin: %w", err)
	}
	return nil
}

// SetIndicator sets the named LED, if one is wired.
func (a *RealActuator) SetIndicator(name string, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	line, ok := a.leds[name]
	if !ok {
		return nil
	}
	if err := line.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set %s led: %w", name, err)
	}
	return nil
}

// ValveOpen reads back the logical valve line.
func (a *RealActuator) ValveOpen() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, err := a.valve.Value()
	if err != nil {
		return false, fmt.Errorf("read valve pin: %w", err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
// LEDs are reconfigured as inputs with pull-down (matching Pi boot defaults).
// The valve line keeps its last commanded level unless closeOnExit is set.
func (a *RealActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.valve != nil {
		if a.closeOnExit {
			if err := a.valve.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("close valve on exit: %w", err))
			}
		}
		if err := a.valve.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close valve pin: %w", err))
		}
	}

	for name, line := range a.leds {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s led: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s led: %w", name, err))
		}
	}

	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealSwitch reads the manual switch from actual hardware.
type RealSwitch struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealSwitch requests the switch line as input with pull-up, so a switch
// wired to ground reads as ON when closed (activeLow).
func NewRealSwitch(chipName string, pin int, activeLow bool) (*RealSwitch, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request switch pin %d: %w", pin, err)
	}
	return &RealSwitch{chip: chip, line: line}, nil
}

// Read returns the logical switch position.
func (s *RealSwitch) Read() (bool, error) {
	v, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("read switch pin: %w", err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
func (s *RealSwitch) Close() error {
	var errs []error
	if s.line != nil {
		if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure switch pin: %w", err))
		}
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close switch pin: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
