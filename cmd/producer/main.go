package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctessum/geom"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/backend"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/cds"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/ecmwf"
	httpadapter "github.com/couchcryptid/discharge-forecast-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/discharge-forecast-service/internal/adapter/kafka"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/discharge-forecast-service/internal/config"
	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/pipeline"
	"github.com/couchcryptid/discharge-forecast-service/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run every job once for today and exit")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateProducer(); err != nil {
		slog.Error("invalid producer config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	var region geom.Polygonal
	if cfg.ClipPolygonPath != "" {
		data, err := os.ReadFile(cfg.ClipPolygonPath)
		if err != nil {
			logger.Error("failed to read clip polygon", "path", cfg.ClipPolygonPath, "error", err)
			os.Exit(1)
		}
		mp, err := domain.ParseRegion(data)
		if err != nil {
			logger.Error("failed to parse clip polygon", "path", cfg.ClipPolygonPath, "error", err)
			os.Exit(1)
		}
		region = mp
		logger.Info("clipping enabled", "path", cfg.ClipPolygonPath, "polygons", len(mp))
	}
	clip := domain.DefaultClipOptions()
	clip.MinValue = cfg.ClipMinDischarge

	cdsClient := cds.NewClient(cds.Options{
		BaseURL:      cfg.CDSAPIURL,
		Key:          cfg.CDSAPIKey,
		PollInterval: cfg.CDSPollInterval,
		Timeout:      cfg.CDSTimeout,
	}, metrics, logger)

	jobs := []pipeline.Job{
		pipeline.NewGloFASJob(
			cds.GloFASSource{Client: cdsClient, BBox: cfg.BBox, LeadTimes: cfg.LeadTimeHours},
			netcdf.Codec{}, st,
			pipeline.GloFASOptions{
				DownloadFolder: cfg.DownloadFolder,
				RasterFolder:   cfg.RasterFolder,
				StagingDir:     cfg.StagingDir,
				RetentionCap:   cfg.RetentionCap,
				Region:         region,
				Clip:           clip,
			}, metrics, logger),
	}
	if cfg.ECMWFEnabled {
		client := ecmwf.NewClient(cfg.ECMWFBaseURL, 0, metrics, logger)
		jobs = append(jobs, pipeline.NewMeteoJob(
			ecmwf.Source{Client: client, Params: cfg.ECMWFParams, Steps: cfg.ECMWFSteps},
			st, pipeline.MeteoOptions{Folder: cfg.MeteoFolder}, metrics, logger))
		logger.Info("ecmwf meteo enabled", "params", cfg.ECMWFParams, "steps", cfg.ECMWFSteps)
	}

	var (
		notifier pipeline.Notifier
		writer   *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		notifier = writer
		logger.Info("kafka notifications enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(jobs, notifier, logger, metrics)

	if *once {
		err := p.RunOnce(ctx)
		closeWriter(writer, logger)
		if err != nil {
			logger.Error("producer run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, nil, p, metrics, logger)
	sched := scheduler.New(p, cfg.ProducerSchedule, metrics, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("producer scheduled", "at", cfg.ProducerSchedule, "next_run", sched.NextRun())

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeWriter(writer, logger)

	logger.Info("shutdown complete")
}

func closeWriter(w *kafkaadapter.Writer, logger *slog.Logger) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
