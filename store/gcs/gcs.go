//go:build gcp

// Package gcs provides an object store backed by a Google Cloud Storage bucket.
//
// The package is only built with the gcp build tag to keep the Google Cloud
// client out of default builds.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/meigma/mappack/store"
)

// DefaultCacheControl marks objects as immutable; names are content keys.
const DefaultCacheControl = "public, max-age=31536000, immutable"

// Config holds configuration for a GCS store.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// Store implements store.Store on a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ store.Store = (*Store)(nil)

// New creates a GCS-backed store using Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Exists reports whether an object is stored under name.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	obj, err := s.object(name)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs: attrs %s: %w", name, err)
	}
	return true, nil
}

// Get opens the object stored under name.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.object(name)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", name, err)
	}
	return r, nil
}

// Put stores data under name.
func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) error {
	obj, err := s.object(name)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = DefaultCacheControl

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: close %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) object(name string) (*storage.ObjectHandle, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	return s.client.Bucket(s.bucket).Object(s.prefix + name), nil
}
