//go:build !linux

package sysinfo

import (
	"context"
	"errors"
	"time"
)

// Options configures HostProbe.
type Options struct {
	ProcRoot string
	SysRoot  string
	Run      CommandRunner
	Timeout  time.Duration
	Now      func() time.Time
}

// HostProbe is not available on non-Linux platforms.
type HostProbe struct{}

// NewProbe returns an error on non-Linux platforms.
func NewProbe(o Options) (*HostProbe, error) {
	return nil, errors.New("sysinfo: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (p *HostProbe) Read(ctx context.Context) (Reading, error) {
	return Reading{}, errors.New("sysinfo: not supported on this platform")
}
