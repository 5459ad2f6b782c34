package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// MeteoOptions configure a MeteoJob.
// Meteo names are not chronologically sortable, so the folder is not pruned.
type MeteoOptions struct {
	Folder string
}

// MeteoJob stores the raw ECMWF messages of the day's 00 UTC run.
type MeteoJob struct {
	source  MeteoSource
	store   store.Store
	opts    MeteoOptions
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewMeteoJob creates a MeteoJob.
func NewMeteoJob(source MeteoSource, st store.Store, opts MeteoOptions, metrics *observability.Metrics, logger *slog.Logger) *MeteoJob {
	return &MeteoJob{
		source:  source,
		store:   st,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

func (j *MeteoJob) Name() string { return "meteo" }

// Run writes every fetched message. A message that fails to store is logged
// and the rest are still written.
func (j *MeteoJob) Run(ctx context.Context, date time.Time) ([]domain.GridPublished, error) {
	msgs, fetchErr := j.source.FetchMeteo(ctx, date)
	if len(msgs) == 0 {
		if fetchErr == nil {
			fetchErr = errors.New("no meteo messages")
		}
		return nil, fmt.Errorf("fetch meteo: %w", fetchErr)
	}

	var events []domain.GridPublished
	errs := []error{fetchErr}
	for _, m := range msgs {
		name := domain.MeteoFileName(date, m.Param, m.Step)
		e, err := store.Upsert(ctx, j.store, store.Join(j.opts.Folder, name), m.Data, "Update "+name)
		if err != nil {
			j.logger.Error("meteo upload failed", "file", name, "param", m.Param, "step", m.Step, "error", err)
			errs = append(errs, err)
			continue
		}
		j.metrics.FilesPublished.WithLabelValues(domain.KindMeteo).Inc()
		j.logger.Info("meteo file published", "path", e.Path, "bytes", len(m.Data))
		events = append(events, domain.NewGridPublished(domain.KindMeteo, e.Path, e.Version, date, []string{m.Param}))
	}
	return events, errors.Join(errs...)
}
