package mappack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/mappack/osu"
)

// MetadataClient looks up beatmap metadata by difficulty identifier.
type MetadataClient interface {
	Beatmap(ctx context.Context, id string) (*osu.Beatmap, error)
}

// ArchiveFetcher downloads the archive of a beatmap set.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, setID int) ([]byte, error)
}

// Compression selects how archives are stored inside a pack.
type Compression uint8

const (
	// CompressionDeflate deflates each archive.
	CompressionDeflate Compression = iota

	// CompressionStore stores archives uncompressed. Beatmap archives are
	// already zip files, so this trades a slightly larger pack for less CPU.
	CompressionStore
)

func (c Compression) String() string {
	switch c {
	case CompressionDeflate:
		return "deflate"
	case CompressionStore:
		return "store"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// ParseCompression parses "deflate" or "store".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "deflate":
		return CompressionDeflate, nil
	case "store":
		return CompressionStore, nil
	default:
		return 0, fmt.Errorf("mappack: unknown compression %q", s)
	}
}

func (c Compression) method() uint16 {
	if c == CompressionStore {
		return zip.Store
	}
	return zip.Deflate
}

// zipEpoch is the modification time of every file in a pack. A fixed time
// keeps packs for equal inputs byte-identical.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Pack is an assembled mappack.
type Pack struct {
	// Data is the zip archive.
	Data []byte

	// Files is the number of archives written to Data.
	Files int

	// Entries holds one outcome per pool entry, in pool order.
	Entries []EntryOutcome
}

// AssemblerConfig configures an Assembler.
type AssemblerConfig struct {
	Metadata MetadataClient
	Archives ArchiveFetcher

	// Concurrency bounds how many entries resolve at once. Values below 1
	// resolve entries one at a time.
	Concurrency int

	Compression Compression
	Logger      *slog.Logger
}

// Assembler resolves pool entries to archives and zips them.
type Assembler struct {
	metadata    MetadataClient
	archives    ArchiveFetcher
	concurrency int
	compression Compression
	logger      *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Assembler{
		metadata:    cfg.Metadata,
		archives:    cfg.Archives,
		concurrency: concurrency,
		compression: cfg.Compression,
		logger:      cfg.Logger,
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Assembler) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// resolution is the result of resolving one entry.
type resolution struct {
	outcome     EntryOutcome
	data        []byte
	credentials bool
}

// Assemble resolves every entry and zips the archives that could be
// downloaded, in entry order.
//
// Entry failures are recorded in Pack.Entries and never fail the build. The
// build fails when ctx ends, when the zip cannot be written, or with
// ErrCredentialsUnavailable when nothing resolved and at least one entry
// failed because no osu! token could be obtained.
func (a *Assembler) Assemble(ctx context.Context, entries []NormalizedEntry) (*Pack, error) {
	results := make([]resolution, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = a.resolve(gctx, entry)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pack, err := a.write(results)
	if err != nil {
		return nil, err
	}

	if pack.Files == 0 {
		for _, r := range results {
			if r.credentials {
				return nil, ErrCredentialsUnavailable
			}
		}
	}
	return pack, nil
}

func (a *Assembler) resolve(ctx context.Context, entry NormalizedEntry) resolution {
	r := resolution{outcome: EntryOutcome{Slot: entry.Slot, URL: entry.URL}}
	log := a.log().With("slot", entry.Slot, "url", entry.URL)

	id, err := ExtractDifficultyID(entry.URL)
	if err != nil {
		r.fail(StatusMalformedReference, err)
		log.Warn("skipping entry", "status", r.outcome.Status, "error", err)
		return r
	}

	beatmap, err := a.metadata.Beatmap(ctx, id)
	if err != nil {
		r.fail(StatusMetadataUnavailable, err)
		r.credentials = errors.Is(err, osu.ErrCredentials)
		log.Warn("skipping entry", "status", r.outcome.Status, "error", err)
		return r
	}

	filename := Filename(entry.Slot, beatmap)
	data, err := a.archives.Fetch(ctx, beatmap.SetID())
	if err != nil {
		r.fail(StatusArchiveUnavailable, err)
		r.outcome.Filename = filename
		log.Warn("skipping entry", "status", r.outcome.Status, "set_id", beatmap.SetID(), "error", err)
		return r
	}

	r.outcome.Status = StatusOK
	r.outcome.Filename = filename
	r.data = data
	log.Debug("resolved entry", "set_id", beatmap.SetID(), "filename", filename, "bytes", len(data))
	return r
}

func (r *resolution) fail(status EntryStatus, err error) {
	r.outcome.Status = status
	r.outcome.Error = err.Error()
}

func (a *Assembler) write(results []resolution) (*Pack, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	pack := &Pack{Entries: make([]EntryOutcome, 0, len(results))}
	written := make(map[string]struct{}, len(results))

	for _, r := range results {
		pack.Entries = append(pack.Entries, r.outcome)
		if !r.outcome.OK() {
			continue
		}
		if _, dup := written[r.outcome.Filename]; dup {
			a.log().Debug("duplicate filename", "filename", r.outcome.Filename, "slot", r.outcome.Slot)
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     r.outcome.Filename,
			Method:   a.compression.method(),
			Modified: zipEpoch,
		})
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", r.outcome.Filename, err)
		}
		if _, err := w.Write(r.data); err != nil {
			return nil, fmt.Errorf("zip %s: %w", r.outcome.Filename, err)
		}
		written[r.outcome.Filename] = struct{}{}
		pack.Files++
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	pack.Data = buf.Bytes()
	return pack, nil
}
