// Package scheduler fires the collection pipeline once per hour, forever,
// with crash isolation per cycle.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbeaudry/homelog/alert"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one collection cycle.
type Job func(ctx context.Context) error

// Scheduler runs the job immediately on start and then at a fixed wall-clock
// minute of every hour. A failing or panicking cycle is caught, logged, and
// surfaced through the notifier; the next trigger always fires. Cycles never
// overlap: a trigger arriving while a cycle is still in flight is skipped.
type Scheduler struct {
	minute   int
	job      Job
	notifier alert.Notifier
	logger   *zap.Logger

	mu sync.Mutex // held for the duration of a cycle
}

// New creates a scheduler firing at the given minute of every hour.
func New(minute int, job Job, notifier alert.Notifier, logger *zap.Logger) *Scheduler {
	return &Scheduler{minute: minute, job: job, notifier: notifier, logger: logger}
}

// Run blocks until the context is cancelled. Cancellation is cooperative:
// a cycle already in flight finishes; only future triggers are cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	// First cycle right away; the operator should not wait up to an hour to
	// learn the configuration is wrong.
	s.RunCycle(ctx)

	c := cron.New()
	spec := fmt.Sprintf("%d * * * *", s.minute)
	if _, err := c.AddFunc(spec, func() { s.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("failed to register hourly trigger %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("hourly trigger armed", zap.Int("minute", s.minute))

	<-ctx.Done()
	s.logger.Info("stop requested, cancelling hourly trigger")
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunCycle runs one cycle with overlap protection and panic isolation.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if !s.mu.TryLock() {
		s.logger.Warn("previous cycle still running, skipping trigger")
		return
	}
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.notifier.Notify(ctx, "collection cycle panicked", fmt.Sprint(r))
		}
	}()

	if err := s.job(ctx); err != nil {
		s.logger.Error("cycle failed", zap.Error(err))
		s.notifier.Notify(ctx, "collection cycle failed", err.Error())
	}
}
