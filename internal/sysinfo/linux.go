//go:build linux

package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

// Options configures HostProbe. Zero values select the real system.
type Options struct {
	ProcRoot string
	SysRoot  string
	Run      CommandRunner
	Timeout  time.Duration
	Now      func() time.Time
}

// HostProbe reads /proc and /sys through procfs, and the core voltage from vcgencmd.
type HostProbe struct {
	proc    procfs.FS
	sys     sysfs.FS
	run     CommandRunner
	timeout time.Duration
	now     func() time.Time
}

// NewProbe opens the proc and sys filesystems.
func NewProbe(o Options) (*HostProbe, error) {
	if o.ProcRoot == "" {
		o.ProcRoot = procfs.DefaultMountPoint
	}
	if o.SysRoot == "" {
		o.SysRoot = sysfs.DefaultMountPoint
	}
	if o.Run == nil {
		o.Run = ExecRunner
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultCommandTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	proc, err := procfs.NewFS(o.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	sys, err := sysfs.NewFS(o.SysRoot)
	if err != nil {
		return nil, fmt.Errorf("open sysfs: %w", err)
	}
	return &HostProbe{proc: proc, sys: sys, run: o.Run, timeout: o.Timeout, now: o.Now}, nil
}

// Read samples every field, continuing past individual failures.
func (p *HostProbe) Read(ctx context.Context) (Reading, error) {
	var r Reading
	var errs []error

	if load, err := p.proc.LoadAvg(); err != nil {
		errs = append(errs, fmt.Errorf("loadavg: %w", err))
	} else {
		r.Load1 = load.Load1
	}

	if stat, err := p.proc.Stat(); err != nil {
		errs = append(errs, fmt.Errorf("stat: %w", err))
	} else if stat.BootTime > 0 {
		boot := time.Unix(int64(stat.BootTime), 0)
		r.Uptime = p.now().Sub(boot).Truncate(time.Second)
	}

	if temp, err := p.cpuTemp(); err != nil {
		errs = append(errs, fmt.Errorf("thermal: %w", err))
	} else {
		r.TempC = temp
	}

	if mhz, err := p.cpuSpeed(); err != nil {
		errs = append(errs, fmt.Errorf("cpufreq: %w", err))
	} else {
		r.SpeedMHz = mhz
	}

	if v, err := readVoltage(ctx, p.run, p.timeout); err != nil {
		errs = append(errs, err)
	} else {
		r.Voltage = v
	}

	return r, errors.Join(errs...)
}

// cpuTemp prefers the zone named cpu-thermal and falls back to the first zone.
func (p *HostProbe) cpuTemp() (float64, error) {
	zones, err := p.sys.ClassThermalZoneStats()
	if err != nil {
		return 0, err
	}
	if len(zones) == 0 {
		return 0, errors.New("no thermal zones")
	}
	zone := zones[0]
	for _, z := range zones {
		if z.Type == "cpu-thermal" {
			zone = z
			break
		}
	}
	return float64(zone.Temp) / 1000, nil
}

// cpuSpeed returns cpu0's current clock in MHz.
func (p *HostProbe) cpuSpeed() (float64, error) {
	cpus, err := p.sys.SystemCpufreq()
	if err != nil {
		return 0, err
	}
	for _, c := range cpus {
		if c.Name != "0" {
			continue
		}
		switch {
		case c.ScalingCurrentFrequency != nil:
			return float64(*c.ScalingCurrentFrequency) / 1000, nil
		case c.CpuinfoCurrentFrequency != nil:
			return float64(*c.CpuinfoCurrentFrequency) / 1000, nil
		}
	}
	return 0, errors.New("no current frequency for cpu0")
}
