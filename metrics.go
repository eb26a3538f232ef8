package mappack

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/meigma/mappack"

// instruments holds the service's metric instruments.
type instruments struct {
	requests      metric.Int64Counter
	entries       metric.Int64Counter
	emptyPacks    metric.Int64Counter
	buildDuration metric.Float64Histogram
}

func newInstruments(provider metric.MeterProvider) (*instruments, error) {
	meter := provider.Meter(meterName)
	requests, err := meter.Int64Counter("mappack.requests",
		metric.WithDescription("Mappack requests by cache outcome."))
	if err != nil {
		return nil, err
	}
	entries, err := meter.Int64Counter("mappack.entries",
		metric.WithDescription("Resolved pool entries by status."))
	if err != nil {
		return nil, err
	}
	emptyPacks, err := meter.Int64Counter("mappack.packs.empty",
		metric.WithDescription("Packs published without any archive."))
	if err != nil {
		return nil, err
	}
	buildDuration, err := meter.Float64Histogram("mappack.build.duration",
		metric.WithDescription("Time to assemble and publish a pack."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &instruments{
		requests:      requests,
		entries:       entries,
		emptyPacks:    emptyPacks,
		buildDuration: buildDuration,
	}, nil
}

func (m *instruments) recordRequest(ctx context.Context, cached bool) {
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", cached)))
}

func (m *instruments) recordBuild(ctx context.Context, pack *Pack, elapsed time.Duration) {
	counts := make(map[EntryStatus]int64)
	for _, e := range pack.Entries {
		counts[e.Status]++
	}
	for status, n := range counts {
		m.entries.Add(ctx, n, metric.WithAttributes(attribute.String("status", string(status))))
	}
	if pack.Files == 0 {
		m.emptyPacks.Add(ctx, 1)
	}
	m.buildDuration.Record(ctx, elapsed.Seconds())
}
