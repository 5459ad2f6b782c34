package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/backend"
	httpadapter "github.com/couchcryptid/discharge-forecast-service/internal/adapter/http"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/discharge-forecast-service/internal/config"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/query"
)

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
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

	var cache *query.SnapshotCache
	if cfg.QueryCacheTTL > 0 {
		cache = query.NewSnapshotCache(cfg.QueryCacheSize, cfg.QueryCacheTTL, clockwork.NewRealClock())
		logger.Info("snapshot cache enabled", "ttl", cfg.QueryCacheTTL, "size", cfg.QueryCacheSize)
	} else {
		logger.Info("snapshot cache disabled")
	}

	svc := query.NewService(st, netcdf.Codec{}, query.Options{
		SummaryFolder:   cfg.DownloadFolder,
		ThresholdFolder: cfg.ThresholdFolder,
		StagingDir:      cfg.StagingDir,
		Cache:           cache,
	}, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, metrics, logger)

	go func() {
		logger.Info("query service listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
