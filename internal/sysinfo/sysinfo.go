// Package sysinfo collects the host readings reported in status responses:
// SoC temperature, load, uptime, core voltage and CPU clock speed.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Reading is one sample of host health. Fields that could not be read are zero.
type Reading struct {
	TempC    float64
	Load1    float64
	Uptime   time.Duration
	Voltage  float64
	SpeedMHz float64
}

// Probe samples host health.
type Probe interface {
	// Read returns whatever could be sampled. A non-nil error describes the
	// fields that failed; the Reading is still usable.
	Read(ctx context.Context) (Reading, error)
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DefaultCommandTimeout bounds the vcgencmd call.
const DefaultCommandTimeout = 2 * time.Second

var errNoVoltage = errors.New("sysinfo: no voltage in vcgencmd output")

// readVoltage asks the VideoCore firmware for the core voltage.
func readVoltage(ctx context.Context, run CommandRunner, timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := run(ctx, "vcgencmd", "measure_volts", "core")
	if err != nil {
		return 0, fmt.Errorf("vcgencmd: %w", err)
	}
	return parseVolts(out)
}

// parseVolts parses "volt=1.2000V".
func parseVolts(out []byte) (float64, error) {
	s := strings.TrimSpace(string(out))
	s, ok := strings.CutPrefix(s, "volt=")
	if !ok {
		return 0, fmt.Errorf("%w: %q", errNoVoltage, out)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "V"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errNoVoltage, err)
	}
	return v, nil
}

// FakeProbe returns a fixed Reading.
type FakeProbe struct {
	Reading Reading
	Err     error
	Calls   int
}

// Read returns the configured Reading and Err.
func (f *FakeProbe) Read(ctx context.Context) (Reading, error) {
	f.Calls++
	return f.Reading, f.Err
}
