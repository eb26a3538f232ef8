package mappack

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/meigma/mappack/store"
)

// Option configures a Service.
type Option func(*Service) error

// Defaults for Service options.
const (
	DefaultConcurrency  = 1
	DefaultBuildTimeout = 5 * time.Minute
)

// WithStore sets the store holding published packs. Required.
func WithStore(s store.Store) Option {
	return func(svc *Service) error {
		if s == nil {
			return ErrNoStore
		}
		svc.store = s
		return nil
	}
}

// WithMetadataClient sets the client used to look up beatmaps. Required.
func WithMetadataClient(c MetadataClient) Option {
	return func(svc *Service) error {
		if c == nil {
			return ErrNoMetadataClient
		}
		svc.metadata = c
		return nil
	}
}

// WithArchiveFetcher sets the fetcher used to download beatmap archives.
// Defaults to an http.Fetcher using the default mirror.
func WithArchiveFetcher(f ArchiveFetcher) Option {
	return func(svc *Service) error {
		if f == nil {
			return errors.New("mappack: nil archive fetcher")
		}
		svc.archives = f
		return nil
	}
}

// WithPublicBaseURL sets the URL under which the store's objects are served.
// Required.
func WithPublicBaseURL(base string) Option {
	return func(svc *Service) error {
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("mappack: public base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("mappack: public base URL %q: missing scheme or host", base)
		}
		svc.baseURL = base
		return nil
	}
}

// WithConcurrency sets how many pool entries resolve at once.
// The default of 1 resolves entries one at a time.
func WithConcurrency(n int) Option {
	return func(svc *Service) error {
		if n < 1 {
			return fmt.Errorf("mappack: concurrency %d: must be at least 1", n)
		}
		svc.concurrency = n
		return nil
	}
}

// WithCompression sets how archives are stored inside packs.
func WithCompression(c Compression) Option {
	return func(svc *Service) error {
		if c != CompressionDeflate && c != CompressionStore {
			return fmt.Errorf("mappack: unknown compression %s", c)
		}
		svc.compression = c
		return nil
	}
}

// WithBuildTimeout bounds assembling and publishing one pack.
// Zero disables the timeout.
func WithBuildTimeout(d time.Duration) Option {
	return func(svc *Service) error {
		if d < 0 {
			return fmt.Errorf("mappack: build timeout %s: negative", d)
		}
		svc.buildTimeout = d
		return nil
	}
}

// WithLogger sets the logger for service operations. The logger is also
// handed to the assembler.
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) error {
		svc.logger = logger
		return nil
	}
}

// WithMeterProvider sets the meter provider for service metrics.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(svc *Service) error {
		svc.meterProvider = mp
		return nil
	}
}
