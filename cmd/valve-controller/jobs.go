package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/valve-controller/internal/sysinfo"
)

// hostSampleInterval is how often host readings for status responses are refreshed.
const hostSampleInterval = 30 * time.Second

// timers runs the periodic jobs that drive the run loop. Jobs only signal
// channels; all work happens in runLoop.
type timers struct {
	scheduler gocron.Scheduler
	tick      chan time.Time
	heartbeat chan time.Time
}

// startTimers schedules the tick job and, when heartbeat is positive, the
// heartbeat job. The first tick fires immediately.
func startTimers(tick, heartbeat time.Duration, opts ...gocron.SchedulerOption) (*timers, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	t := &timers{
		scheduler: s,
		tick:      make(chan time.Time, 1),
		heartbeat: make(chan time.Time, 1),
	}

	if _, err := s.NewJob(
		gocron.DurationJob(tick),
		gocron.NewTask(notify, t.tick),
		gocron.WithName("tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("schedule tick job: %w", err)
	}

	if heartbeat > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(heartbeat),
			gocron.NewTask(notify, t.heartbeat),
			gocron.WithName("heartbeat"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			s.Shutdown()
			return nil, fmt.Errorf("schedule heartbeat job: %w", err)
		}
	}

	s.Start()
	return t, nil
}

// notify does a non-blocking send; a tick the loop has not consumed yet is
// not worth queueing behind.
func notify(ch chan time.Time) {
	select {
	case ch <- time.Now():
	default:
		log.Debug("run loop busy, dropping timer signal")
	}
}

// sampleHost refreshes s every interval, starting now. The probe runs in the
// scheduler's goroutine so a slow vcgencmd never holds up the run loop.
func (t *timers) sampleHost(s *sysinfo.Sampler, every time.Duration) error {
	_, err := t.scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if err := s.Refresh(context.Background()); err != nil {
				log.WithError(err).Debug("host reading incomplete")
			}
		}),
		gocron.WithName("host-sample"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule host sample job: %w", err)
	}
	return nil
}

// Stop shuts the scheduler down.
func (t *timers) Stop() error {
	return t.scheduler.Shutdown()
}
