//go:build !gcp

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meigma/mappack/internal/config"
	"github.com/meigma/mappack/store"
)

func openGCS(context.Context, config.GCSStoreConfig, *slog.Logger) (store.Store, func(), error) {
	return nil, nil, errors.New("gcs store requires a build with -tags gcp")
}
