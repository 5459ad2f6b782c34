// Package backend opens the shared store selected by STORE_BACKEND.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/github"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/localstore"
	"github.com/couchcryptid/discharge-forecast-service/internal/adapter/s3store"
	"github.com/couchcryptid/discharge-forecast-service/internal/config"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/store"
)

// Open returns the configured store wrapped with request metrics.
func Open(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (store.Store, error) {
	var s store.Store
	switch cfg.StoreBackend {
	case config.BackendGitHub:
		s = github.New(github.Options{
			Token:   cfg.GitHubToken,
			Repo:    cfg.GitHubRepo,
			Branch:  cfg.GitHubBranch,
			BaseURL: cfg.GitHubAPIURL,
			Timeout: cfg.StoreTimeout,
		}, logger)
		logger.Info("github store", "repo", cfg.GitHubRepo, "branch", cfg.GitHubBranch)
	case config.BackendS3:
		s3, err := s3store.Connect(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, fmt.Errorf("connect s3 store: %w", err)
		}
		s = s3
		logger.Info("s3 store", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	case config.BackendLocal:
		local, err := localstore.New(cfg.LocalStoreDir)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		s = local
		logger.Info("local store", "dir", cfg.LocalStoreDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return store.NewInstrumented(s, cfg.StoreBackend, metrics), nil
}
