package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
)

// EnsembleSource writes the raw multi-member discharge grid of one issue date
// to dst.
type EnsembleSource interface {
	FetchEnsemble(ctx context.Context, date time.Time, dst string) error
}

// MeteoSource returns the short-range forecast messages of one run. A partial
// result comes with a non-nil error.
type MeteoSource interface {
	FetchMeteo(ctx context.Context, date time.Time) ([]domain.MeteoMessage, error)
}

// GridCodec reads and writes grid files.
type GridCodec interface {
	Decode(path string) (*domain.Grid, error)
	Encode(path string, g *domain.Grid) error
}

// Notifier announces published files.
type Notifier interface {
	Notify(ctx context.Context, events []domain.GridPublished) error
}

// Job is one daily producer task. It returns the files it published even
// when it also returns an error.
type Job interface {
	Name() string
	Run(ctx context.Context, date time.Time) ([]domain.GridPublished, error)
}

// Producer runs the configured jobs for the current date.
type Producer struct {
	jobs     []Job
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// New creates a Producer. A nil notifier disables notifications.
func New(jobs []Job, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Producer {
	return &Producer{
		jobs:     jobs,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once any job has completed successfully.
func (p *Producer) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("producer has not completed a job yet")
	}
	return nil
}

// RunOnce runs every job for today's date in order. A failing job does not
// stop the ones after it; the failures are joined into the returned error.
func (p *Producer) RunOnce(ctx context.Context) error {
	date := domain.Today()
	p.logger.Info("producer run started", "date", date.Format(time.DateOnly), "jobs", len(p.jobs))

	var errs []error
	for _, job := range p.jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.runJob(ctx, job, date); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Producer) runJob(ctx context.Context, job Job, date time.Time) error {
	start := time.Now()
	events, err := job.Run(ctx, date)
	p.metrics.JobDuration.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())

	if len(events) > 0 && p.notifier != nil {
		if nerr := p.notifier.Notify(ctx, events); nerr != nil {
			p.logger.Warn("notify failed", "job", job.Name(), "events", len(events), "error", nerr)
		}
	}

	if err != nil {
		p.metrics.JobRuns.WithLabelValues(job.Name(), "error").Inc()
		p.logger.Error("job failed", "job", job.Name(), "published", len(events), "error", err)
		return err
	}
	p.metrics.JobRuns.WithLabelValues(job.Name(), "success").Inc()
	p.ready.Store(true)
	p.logger.Info("job completed", "job", job.Name(), "published", len(events), "duration", time.Since(start))
	return nil
}
