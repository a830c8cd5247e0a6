package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"autopost/internal/ports"
)

// CronScheduler drives the recurring cycle on a fixed interval.
type CronScheduler struct {
	interval time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler firing every interval.
func NewCronScheduler(interval time.Duration, logger *slog.Logger) *CronScheduler {
	return &CronScheduler{interval: interval, logger: logger}
}

// Start runs the job once immediately, then on every interval tick.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if c.cron != nil {
		return nil
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.interval), func() {
		job(time.Now())
	}); err != nil {
		c.cron = nil
		return fmt.Errorf("schedule job: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("scheduler started", "interval", c.interval.String())
	}

	job(time.Now())
	c.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running job to finish, or for
// the context to give up.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}

	done := c.cron.Stop()
	c.cron = nil

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
