// Package scheduler owns the process-wide gocron scheduler used by periodic features.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
)

// Job is a unit of scheduled work. Errors are logged and counted, never retried.
type Job func(ctx context.Context) error

// Scheduler wraps gocron with structured logging and a shared lifetime context.
type Scheduler struct {
	s gocron.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler in UTC.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.NewGocronLogger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{s: s, ctx: ctx, cancel: cancel}, nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.s.Start()
	logger.SCHED.Info("scheduler started",
		slog.String("event", "scheduler.start"),
		slog.Int("count", len(s.s.Jobs())),
	)
}

// Every runs job at a fixed interval; overlapping runs are skipped.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.wrap(name, job)),
		gocron.WithName(name),
		gocron.WithTags(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	logger.SCHED.Info("job scheduled",
		slog.String("event", "scheduler.add"),
		slog.String("operation", name),
		slog.Duration("interval", interval),
	)
	return nil
}

// After runs job once after delay. Any pending run with the same name is replaced.
func (s *Scheduler) After(name string, delay time.Duration, job Job) error {
	s.s.RemoveByTags(name)
	_, err := s.s.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(s.wrap(name, job)),
		gocron.WithName(name),
		gocron.WithTags(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	logger.SCHED.Debug("job scheduled",
		slog.String("event", "scheduler.add"),
		slog.String("operation", name),
		slog.Duration("delay", delay),
	)
	return nil
}

// Pending reports whether a job with the given name is registered.
func (s *Scheduler) Pending(name string) bool {
	for _, j := range s.s.Jobs() {
		if j.Name() == name {
			return true
		}
	}
	return false
}

// Stop cancels running jobs' context and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.s.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	logger.SCHED.Info("scheduler stopped", slog.String("event", "scheduler.stop"))
	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		start := time.Now()
		err := job(s.ctx)
		metrics.ScheduledRuns.WithLabelValues(name, metrics.Status(err)).Inc()
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("operation", name),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		}
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		logger.LogEvent(s.ctx, logger.SCHED, level, "scheduler.run", attrs...)
	}
}
