package sysinfo

import (
	"context"
	"sync"
	"time"
)

// Sampler keeps the most recent Reading so status requests never wait on the
// probe. Refresh is meant to run off the control loop.
type Sampler struct {
	probe   Probe
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	latest  Reading
	sampled time.Time
}

// NewSampler wraps probe. A nil probe leaves every Reading zero.
func NewSampler(probe Probe, timeout time.Duration) *Sampler {
	return &Sampler{probe: probe, timeout: timeout, now: time.Now}
}

// SetClock replaces the time source. For tests.
func (s *Sampler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Refresh reads the probe and stores the result, even a partial one.
func (s *Sampler) Refresh(ctx context.Context) error {
	if s.probe == nil {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	r, err := s.probe.Read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
	s.sampled = s.now()
	return err
}

// Latest returns the last stored Reading with Uptime carried forward to now.
func (s *Sampler) Latest() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.latest
	if r.Uptime > 0 && !s.sampled.IsZero() {
		if age := s.now().Sub(s.sampled); age > 0 {
			r.Uptime += age
		}
	}
	return r
}
