package mappack

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	mphttp "github.com/meigma/mappack/http"
	"github.com/meigma/mappack/store"
)

// Result describes a generated or cached pack.
type Result struct {
	// URL is the public address of the pack.
	URL string `json:"url"`

	// Key is the pack's content key.
	Key ContentKey `json:"key"`

	// Cached reports whether the pack was already published.
	Cached bool `json:"cached"`

	// Files is the number of archives in a freshly built pack.
	// It is zero for cached packs.
	Files int `json:"files"`

	// Entries holds per-entry outcomes of a fresh build, in pool order.
	// It is empty for cached packs.
	Entries []EntryOutcome `json:"entries,omitempty"`
}

// Service generates mappacks and publishes them to a store.
type Service struct {
	store         store.Store
	metadata      MetadataClient
	archives      ArchiveFetcher
	baseURL       string
	concurrency   int
	compression   Compression
	buildTimeout  time.Duration
	logger        *slog.Logger
	meterProvider metric.MeterProvider

	assembler *Assembler
	publisher *Publisher
	metrics   *instruments
	builds    singleflight.Group
}

// New creates a Service. WithStore, WithMetadataClient and
// WithPublicBaseURL are required.
func New(opts ...Option) (*Service, error) {
	svc := &Service{
		concurrency:  DefaultConcurrency,
		compression:  CompressionDeflate,
		buildTimeout: DefaultBuildTimeout,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}

	switch {
	case svc.store == nil:
		return nil, ErrNoStore
	case svc.metadata == nil:
		return nil, ErrNoMetadataClient
	case svc.baseURL == "":
		return nil, ErrNoPublicBaseURL
	}
	if svc.archives == nil {
		svc.archives = mphttp.NewFetcher(mphttp.WithLogger(svc.logger))
	}
	if svc.meterProvider == nil {
		svc.meterProvider = otel.GetMeterProvider()
	}

	m, err := newInstruments(svc.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("mappack: metrics: %w", err)
	}
	svc.metrics = m
	svc.assembler = NewAssembler(AssemblerConfig{
		Metadata:    svc.metadata,
		Archives:    svc.archives,
		Concurrency: svc.concurrency,
		Compression: svc.compression,
		Logger:      svc.logger,
	})
	svc.publisher = NewPublisher(svc.store, svc.baseURL)
	return svc, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Generate returns the address of the pack for a pool, building and
// publishing it first if the store does not hold it yet.
//
// Concurrent calls for the same pool share one build. The build is detached
// from ctx cancellation and bounded by the build timeout instead, so a
// caller that gives up does not abort a build other callers wait on.
func (s *Service) Generate(ctx context.Context, entries []PoolEntry) (*Result, error) {
	if len(entries) == 0 {
		return nil, ErrNoMaps
	}
	normalized := Normalize(entries)
	key := DeriveKey(normalized)
	log := s.log().With("key", key.String())

	exists, err := s.store.Exists(ctx, key.ObjectName())
	if err != nil {
		return nil, fmt.Errorf("check store for %s: %w", key.ObjectName(), err)
	}
	if exists {
		s.metrics.recordRequest(ctx, true)
		log.Debug("pack cached")
		return &Result{URL: s.publisher.Address(key), Key: key, Cached: true}, nil
	}
	s.metrics.recordRequest(ctx, false)

	ch := s.builds.DoChan(key.String(), func() (any, error) {
		bctx := context.WithoutCancel(ctx)
		if s.buildTimeout > 0 {
			var cancel context.CancelFunc
			bctx, cancel = context.WithTimeout(bctx, s.buildTimeout)
			defer cancel()
		}
		return s.build(bctx, key, normalized)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		r := *res.Val.(*Result) //nolint:errcheck // type assertion always succeeds when err is nil
		r.Entries = slices.Clone(r.Entries)
		if res.Shared {
			log.Debug("shared in-flight build")
		}
		return &r, nil
	}
}

func (s *Service) build(ctx context.Context, key ContentKey, entries []NormalizedEntry) (*Result, error) {
	log := s.log().With("key", key.String())
	start := time.Now()

	pack, err := s.assembler.Assemble(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", key, err)
	}
	if pack.Files == 0 {
		log.Warn("publishing empty pack", "entries", len(entries))
	}

	url, err := s.publisher.Publish(ctx, key, pack.Data)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.metrics.recordBuild(ctx, pack, elapsed)
	log.Info("published pack",
		"files", pack.Files,
		"entries", len(entries),
		"bytes", len(pack.Data),
		"duration", elapsed,
	)
	return &Result{URL: url, Key: key, Files: pack.Files, Entries: pack.Entries}, nil
}
