package usecase

import (
	"context"
	"time"

	"autopost/internal/ports"
)

// Scheduler wires the cron driver with the posting cycle.
type Scheduler struct {
	driver ports.Scheduler
	cycle  *Cycle
	dryRun bool
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, cycle *Cycle, dryRun bool) *Scheduler {
	return &Scheduler{driver: driver, cycle: cycle, dryRun: dryRun}
}

// Start registers the cycle with the provided scheduler driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.cycle == nil {
		return nil
	}

	job := func(time.Time) {
		_ = s.cycle.Run(ctx, s.dryRun)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
