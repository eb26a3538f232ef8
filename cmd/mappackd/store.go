package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meigma/mappack/internal/config"
	"github.com/meigma/mappack/store"
	"github.com/meigma/mappack/store/disk"
	"github.com/meigma/mappack/store/memory"
	"github.com/meigma/mappack/store/oci"
	"github.com/meigma/mappack/store/s3"
)

// openStore opens the configured pack store. The returned function releases
// any resources the store holds.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.Type {
	case config.StoreDisk:
		s, err := disk.New(cfg.Disk.Dir, disk.WithShardPrefixLen(cfg.Disk.ShardPrefixLen))
		if err != nil {
			return nil, nil, fmt.Errorf("open disk store: %w", err)
		}
		return s, noop, nil
	case config.StoreMemory:
		return memory.New(), noop, nil
	case config.StoreS3:
		s, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			CacheControl:    cfg.S3.CacheControl,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 store: %w", err)
		}
		return s, noop, nil
	case config.StoreOCI:
		s, err := oci.NewRemote(oci.RemoteConfig{
			Repository: cfg.OCI.Repository,
			PlainHTTP:  cfg.OCI.PlainHTTP,
			Username:   cfg.OCI.Username,
			Password:   cfg.OCI.Password,
		}, oci.WithLogger(logger.With("component", "oci")))
		if err != nil {
			return nil, nil, fmt.Errorf("open oci store: %w", err)
		}
		return s, noop, nil
	case config.StoreGCS:
		return openGCS(ctx, cfg.GCS, logger)
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
