// Package oci provides an object store backed by an OCI registry.
//
// Each object is pushed as a single-layer OCI artifact and tagged with its
// object name, so "{key}.zip" becomes the tag of the artifact holding the
// mappack. Any oras.Target can be used, which makes the in-memory ORAS store
// suitable for tests.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/meigma/mappack/store"
)

const (
	// ArtifactType identifies mappack artifacts in the registry.
	ArtifactType = "application/vnd.meigma.mappack.v1"

	// defaultMediaType is used for layers stored without a content type.
	defaultMediaType = "application/octet-stream"

	// createdEpoch pins the manifest creation annotation so re-publishing the
	// same object produces the same manifest digest.
	createdEpoch = "1980-01-01T00:00:00Z"
)

// ErrInvalidArtifact is returned when a tagged manifest does not hold a
// single-layer mappack artifact.
var ErrInvalidArtifact = errors.New("oci: invalid mappack artifact")

// Store implements store.Store on an oras.Target.
type Store struct {
	target oras.Target
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for store operations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on top of target.
func New(target oras.Target, opts ...Option) *Store {
	s := &Store{target: target}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RemoteConfig configures a registry-backed store.
type RemoteConfig struct {
	// Repository is the repository reference, e.g. "ghcr.io/org/mappacks".
	Repository string
	// PlainHTTP disables TLS, for local registries.
	PlainHTTP bool
	// Username and Password are optional static credentials.
	Username string
	Password string
}

// NewRemote creates a store pushing to a remote registry repository.
func NewRemote(cfg RemoteConfig, opts ...Option) (*Store, error) {
	repo, err := remote.NewRepository(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("oci: parse repository %q: %w", cfg.Repository, err)
	}
	repo.PlainHTTP = cfg.PlainHTTP

	client := &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Header: http.Header{
			"User-Agent": {"mappack/1.0"},
		},
	}
	if cfg.Username != "" || cfg.Password != "" {
		client.Credential = auth.StaticCredential(repo.Reference.Host(), auth.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	repo.Client = client

	return New(repo, opts...), nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Exists reports whether an artifact is tagged with name.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := store.ValidateName(name); err != nil {
		return false, err
	}
	_, err := s.target.Resolve(ctx, name)
	if errors.Is(err, errdef.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("oci: resolve %s: %w", name, err)
	}
	return true, nil
}

// Get opens the layer of the artifact tagged with name.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	desc, err := s.target.Resolve(ctx, name)
	if errors.Is(err, errdef.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oci: resolve %s: %w", name, err)
	}

	manifestJSON, err := content.FetchAll(ctx, s.target, desc)
	if err != nil {
		return nil, fmt.Errorf("oci: fetch manifest %s: %w", name, err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if len(manifest.Layers) != 1 {
		return nil, fmt.Errorf("%w: %d layers", ErrInvalidArtifact, len(manifest.Layers))
	}

	rc, err := s.target.Fetch(ctx, manifest.Layers[0])
	if err != nil {
		return nil, fmt.Errorf("oci: fetch layer %s: %w", name, err)
	}
	return rc, nil
}

// Put pushes data as a single-layer artifact and tags it with name.
func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}
	if contentType == "" {
		contentType = defaultMediaType
	}

	layer := content.NewDescriptorFromBytes(contentType, data)
	layer.Annotations = map[string]string{
		ocispec.AnnotationTitle: name,
	}

	exists, err := s.target.Exists(ctx, layer)
	if err != nil {
		return fmt.Errorf("oci: check layer %s: %w", layer.Digest, err)
	}
	if !exists {
		if err := s.target.Push(ctx, layer, bytes.NewReader(data)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
			return fmt.Errorf("oci: push layer %s: %w", layer.Digest, err)
		}
	}

	manifestDesc, err := oras.PackManifest(ctx, s.target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
		ManifestAnnotations: map[string]string{
			ocispec.AnnotationCreated: createdEpoch,
		},
	})
	if err != nil {
		return fmt.Errorf("oci: pack manifest %s: %w", name, err)
	}

	if err := s.target.Tag(ctx, manifestDesc, name); err != nil {
		return fmt.Errorf("oci: tag %s: %w", name, err)
	}
	s.log().Debug("pushed artifact", "name", name, "manifest", manifestDesc.Digest.String(), "size", len(data))
	return nil
}
