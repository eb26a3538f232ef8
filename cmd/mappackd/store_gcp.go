//go:build gcp

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meigma/mappack/internal/config"
	"github.com/meigma/mappack/store"
	"github.com/meigma/mappack/store/gcs"
)

func openGCS(ctx context.Context, cfg config.GCSStoreConfig, logger *slog.Logger) (store.Store, func(), error) {
	s, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	if err != nil {
		return nil, nil, fmt.Errorf("open gcs store: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close gcs client", "error", err)
		}
	}, nil
}
