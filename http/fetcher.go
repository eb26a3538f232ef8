// Package http downloads beatmapset archives from public mirrors.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMirror serves .osz archives at {mirror}/{setID}.
	DefaultMirror = "https://api.nerinyan.moe/d"

	// DefaultTimeout bounds a single mirror download.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxBytes caps the size of a downloaded archive.
	DefaultMaxBytes int64 = 200 << 20

	// setIDPlaceholder marks where the set id goes in a mirror template.
	setIDPlaceholder = "{id}"
)

var (
	// ErrAllMirrorsFailed is returned when no mirror produced the archive.
	ErrAllMirrorsFailed = errors.New("http: all mirrors failed")

	// ErrTooLarge is returned when an archive exceeds the size cap.
	ErrTooLarge = errors.New("http: archive exceeds size limit")

	// ErrEmptyArchive is returned when a mirror answers with an empty body.
	ErrEmptyArchive = errors.New("http: empty archive")
)

// Fetcher downloads beatmapset archives, trying each mirror in order.
type Fetcher struct {
	mirrors  []string
	client   *nethttp.Client
	headers  nethttp.Header
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(f *Fetcher) {
		if headers == nil {
			return
		}
		f.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) {
		if f.headers == nil {
			f.headers = make(nethttp.Header)
		}
		f.headers.Set(key, value)
	}
}

// WithMirrors sets the mirrors tried in order. A mirror is either a base URL
// to which "/{setID}" is appended, or a template containing "{id}".
// Empty entries are ignored; an empty list keeps the default mirror.
func WithMirrors(mirrors ...string) Option {
	return func(f *Fetcher) {
		var kept []string
		for _, m := range mirrors {
			m = strings.TrimSpace(m)
			if m != "" {
				kept = append(kept, m)
			}
		}
		if len(kept) > 0 {
			f.mirrors = kept
		}
	}
}

// WithTimeout bounds each mirror download. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithMaxBytes caps the archive size. Zero or negative disables the cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithLogger sets the logger for fetch operations.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		mirrors:  []string{DefaultMirror},
		client:   nethttp.DefaultClient,
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = nethttp.DefaultClient
	}
	return f
}

// Mirrors returns the configured mirrors in the order they are tried.
func (f *Fetcher) Mirrors() []string {
	return append([]string(nil), f.mirrors...)
}

// log returns the logger, falling back to a discard logger if nil.
func (f *Fetcher) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

// Fetch downloads the archive of the beatmapset with the given id.
//
// Each mirror is tried in order and the first successful body is returned.
// When every mirror fails the returned error wraps ErrAllMirrorsFailed and
// the individual mirror errors.
func (f *Fetcher) Fetch(ctx context.Context, setID int) ([]byte, error) {
	if setID <= 0 {
		return nil, fmt.Errorf("http: invalid set id %d", setID)
	}

	errs := []error{ErrAllMirrorsFailed}
	for _, mirror := range f.mirrors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := mirrorURL(mirror, setID)
		data, err := f.fetchOne(ctx, url)
		if err == nil {
			f.log().Debug("downloaded archive", "set_id", setID, "url", url, "bytes", len(data))
			return data, nil
		}
		f.log().Debug("mirror failed", "set_id", setID, "url", url, "error", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := f.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: %s", url, resp.Status)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("get %s: %w (%d bytes)", url, ErrTooLarge, resp.ContentLength)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("get %s: read body: %w", url, err)
	}
	if f.maxBytes > 0 && int64(buf.Len()) > f.maxBytes {
		return nil, fmt.Errorf("get %s: %w", url, ErrTooLarge)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("get %s: %w", url, ErrEmptyArchive)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) newRequest(ctx context.Context, url string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range f.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/x-osu-beatmap-archive, application/octet-stream, */*")
	}
	return req, nil
}

func mirrorURL(mirror string, setID int) string {
	id := strconv.Itoa(setID)
	if strings.Contains(mirror, setIDPlaceholder) {
		return strings.ReplaceAll(mirror, setIDPlaceholder, id)
	}
	return strings.TrimRight(mirror, "/") + "/" + id
}
