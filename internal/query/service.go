// Package query answers point queries against the newest summary grid in the
// shared store and the return-level threshold grids beside it.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

var (
	// ErrNoSnapshot is returned when the summary folder holds no grid.
	ErrNoSnapshot = errors.New("no forecast snapshot available")
	// ErrUpstream is returned when the summary grid cannot be listed,
	// downloaded or decoded.
	ErrUpstream = errors.New("forecast snapshot unavailable")
)

// Decoder reads a grid file from local disk.
type Decoder interface {
	Decode(path string) (*domain.Grid, error)
}

// Options configure a Service.
type Options struct {
	SummaryFolder   string
	ThresholdFolder string
	// StagingDir holds downloaded files while they are decoded; empty uses
	// the system default.
	StagingDir string
	// Cache keeps decoded grids between requests; nil downloads every file
	// on every query.
	Cache *SnapshotCache
}

// Threshold is the lookup of one return-level file.
type Threshold struct {
	File       string
	Resolution domain.Resolution
}

// Result is the answer to one point query.
type Result struct {
	Lat        float64
	Lon        float64
	Source     string
	Mean       domain.Resolution
	Std        domain.Resolution
	Thresholds []Threshold
}

// Service resolves point queries.
type Service struct {
	store   store.Store
	decoder Decoder
	opts    Options
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(st store.Store, decoder Decoder, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		decoder: decoder,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// Consult looks up the newest summary grid at (lat, lon), then every
// threshold grid. A threshold that cannot be read or resolved is reported as
// failed in its own entry and never affects the others.
func (s *Service) Consult(ctx context.Context, lat, lon float64) (Result, error) {
	latest, err := store.Latest(ctx, s.store, s.opts.SummaryFolder, domain.HasExtension(".nc"))
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s is empty", ErrNoSnapshot, s.opts.SummaryFolder)
	}
	if err != nil {
		s.logger.Error("list summary folder failed", "folder", s.opts.SummaryFolder, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	g, err := s.load(ctx, latest)
	if err != nil {
		s.logger.Error("load summary failed", "path", latest.Path, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	sum := domain.LookupSummary(g, lat, lon)
	s.record("summary", latest.Path, lat, lon, sum.Mean)
	s.record("summary", latest.Path, lat, lon, sum.Std)

	return Result{
		Lat:        lat,
		Lon:        lon,
		Source:     latest.Name,
		Mean:       sum.Mean,
		Std:        sum.Std,
		Thresholds: s.thresholds(ctx, lat, lon),
	}, nil
}

// CheckReadiness reports whether a summary grid is available to serve.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if _, err := store.Latest(ctx, s.store, s.opts.SummaryFolder, domain.HasExtension(".nc")); err != nil {
		return fmt.Errorf("summary folder %s: %w", s.opts.SummaryFolder, err)
	}
	return nil
}

func (s *Service) thresholds(ctx context.Context, lat, lon float64) []Threshold {
	if s.opts.ThresholdFolder == "" {
		return nil
	}
	entries, err := s.store.List(ctx, s.opts.ThresholdFolder, domain.HasExtension(".nc"))
	if err != nil {
		s.logger.Error("list threshold folder failed", "folder", s.opts.ThresholdFolder, "error", err)
		return nil
	}

	out := make([]Threshold, 0, len(entries))
	for _, e := range entries {
		var res domain.Resolution
		g, err := s.load(ctx, e)
		if err != nil {
			res = domain.Resolution{Outcome: domain.Outcome{Status: domain.StatusFailed, Err: err}}
		} else {
			res = domain.LookupPrimary(g, lat, lon)
		}
		s.record("threshold", e.Path, lat, lon, res)
		out = append(out, Threshold{File: e.Name, Resolution: res})
	}
	return out
}

// load returns the decoded grid of e, from the cache when enabled or through
// a staged temporary file that is removed on every return path.
func (s *Service) load(ctx context.Context, e store.Entry) (*domain.Grid, error) {
	key := cacheKey(e.Path, e.Version)
	if s.opts.Cache != nil {
		if g, ok := s.opts.Cache.Get(key); ok {
			s.metrics.SnapshotCache.WithLabelValues("hit").Inc()
			return g, nil
		}
		s.metrics.SnapshotCache.WithLabelValues("miss").Inc()
	}

	data, err := s.store.Fetch(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Path, err)
	}
	f, err := os.CreateTemp(s.opts.StagingDir, "snapshot-*.nc")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", e.Path, err)
	}
	defer os.Remove(f.Name())
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", e.Path, err)
	}

	g, err := s.decoder.Decode(f.Name())
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Path, err)
	}
	if s.opts.Cache != nil {
		s.opts.Cache.Put(key, g)
	}
	return g, nil
}

func (s *Service) record(source, path string, lat, lon float64, res domain.Resolution) {
	s.metrics.LookupOutcomes.WithLabelValues(source, res.Outcome.Status.String()).Inc()
	switch res.Outcome.Status {
	case domain.StatusFailed:
		s.logger.Warn("lookup failed", "source", source, "path", path, "variable", res.Variable,
			"lat", lat, "lon", lon, "error", res.Outcome.Err)
	case domain.StatusAbsent:
		s.logger.Info("lookup found no data", "source", source, "path", path, "variable", res.Variable, "lat", lat, "lon", lon)
	}
	for _, skip := range res.Skipped {
		s.logger.Debug("horizon skipped", "source", source, "path", path, "variable", res.Variable,
			"hours", skip.Hours, "raw", skip.Raw, "status", skip.Outcome.Status.String(), "error", skip.Outcome.Err)
	}
}
