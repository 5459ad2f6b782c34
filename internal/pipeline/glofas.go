package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// GloFASOptions configure a GloFASJob.
type GloFASOptions struct {
	DownloadFolder string
	RasterFolder   string
	// StagingDir is the parent of the per-run temporary directory; empty uses
	// the system default.
	StagingDir   string
	RetentionCap int
	// Region enables the clipped derivative when non-nil.
	Region geom.Polygonal
	Clip   domain.ClipOptions
}

// GloFASJob publishes the daily ensemble summary and its clipped derivative.
type GloFASJob struct {
	source  EnsembleSource
	codec   GridCodec
	store   store.Store
	opts    GloFASOptions
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGloFASJob creates a GloFASJob.
func NewGloFASJob(source EnsembleSource, codec GridCodec, st store.Store, opts GloFASOptions, metrics *observability.Metrics, logger *slog.Logger) *GloFASJob {
	return &GloFASJob{
		source:  source,
		codec:   codec,
		store:   st,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

func (j *GloFASJob) Name() string { return "glofas" }

// Run retrieves the ensemble for date, reduces it to mean and standard
// deviation and writes the summary to the download folder. The staging
// directory is removed on every return path.
func (j *GloFASJob) Run(ctx context.Context, date time.Time) ([]domain.GridPublished, error) {
	dir, err := os.MkdirTemp(j.opts.StagingDir, "glofas-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	raw := filepath.Join(dir, "ensemble.nc")
	if err := j.source.FetchEnsemble(ctx, date, raw); err != nil {
		return nil, fmt.Errorf("fetch ensemble: %w", err)
	}
	g, err := j.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ensemble: %w", err)
	}
	summary, err := domain.ReduceEnsemble(g, domain.VarDischarge, domain.AxisMember)
	if err != nil {
		return nil, err
	}

	var events []domain.GridPublished
	ev, err := j.publish(ctx, dir, summary, j.opts.DownloadFolder, domain.SummaryFileName(date), domain.KindSummary, date)
	if err != nil {
		return nil, err
	}
	events = append(events, ev)
	j.prune(ctx, j.opts.DownloadFolder)

	if j.opts.Region == nil {
		return events, nil
	}
	clipped, err := domain.Clip(summary, j.opts.Region, j.opts.Clip)
	if err != nil {
		return events, fmt.Errorf("clip summary: %w", err)
	}
	ev, err = j.publish(ctx, dir, clipped, j.opts.RasterFolder, domain.ClippedFileName(date), domain.KindClipped, date)
	if err != nil {
		return events, err
	}
	events = append(events, ev)
	j.prune(ctx, j.opts.RasterFolder)
	return events, nil
}

func (j *GloFASJob) publish(ctx context.Context, dir string, g *domain.Grid, folder, name, kind string, date time.Time) (domain.GridPublished, error) {
	local := filepath.Join(dir, name)
	if err := j.codec.Encode(local, g); err != nil {
		return domain.GridPublished{}, fmt.Errorf("encode %s: %w", name, err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return domain.GridPublished{}, fmt.Errorf("read %s: %w", local, err)
	}
	p := store.Join(folder, name)
	e, err := store.Upsert(ctx, j.store, p, data, "Update "+name)
	if err != nil {
		return domain.GridPublished{}, err
	}
	j.metrics.FilesPublished.WithLabelValues(kind).Inc()
	j.logger.Info("grid published", "kind", kind, "path", e.Path, "bytes", len(data))
	return domain.NewGridPublished(kind, e.Path, e.Version, date, g.VarNames()), nil
}

// prune failures are logged per file by store.Prune and never fail the job.
func (j *GloFASJob) prune(ctx context.Context, folder string) {
	removed, err := store.Prune(ctx, j.store, folder, domain.HasExtension(".nc"), j.opts.RetentionCap, j.logger)
	j.metrics.FilesPruned.Add(float64(len(removed)))
	if err != nil {
		j.logger.Warn("retention incomplete", "folder", folder, "error", err)
	}
}
