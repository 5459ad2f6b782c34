// Package scheduler runs the producer once a day on a gocron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
)

// Runner is one complete producer run.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler triggers a Runner daily at a fixed UTC time of day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	runner    Runner
	at        string
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates a Scheduler firing daily at at ("HH:MM", UTC).
func New(runner Runner, at string, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		at:        at,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start schedules the daily run and starts the scheduler in the background.
// Runs use ctx, so cancelling it aborts a run in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	job, err := s.scheduler.Every(1).Day().At(s.at).Do(func() {
		s.logger.Info("scheduled producer run starting")
		if err := s.runner.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled producer run failed", "error", err)
			return
		}
		s.logger.Info("scheduled producer run completed")
	})
	if err != nil {
		return fmt.Errorf("schedule daily run at %q: %w", s.at, err)
	}
	s.job = job
	s.scheduler.StartAsync()
	s.metrics.ProducerRunning.Set(1)
	s.logger.Info("producer scheduled", "at", s.at, "next_run", job.NextRun())
	return nil
}

// RunNow triggers the scheduled run immediately without changing the
// schedule.
func (s *Scheduler) RunNow() {
	s.scheduler.RunAll()
}

// NextRun reports when the daily run fires next; zero before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// Stop stops the scheduler; a run in progress is not waited for.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.metrics.ProducerRunning.Set(0)
}
