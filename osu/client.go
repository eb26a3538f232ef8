// Package osu provides a client for the osu! API v2 beatmap endpoint and the
// OAuth client-credentials exchange that authenticates it.
package osu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the osu! API v2 base URL.
	DefaultAPIURL = "https://osu.ppy.sh/api/v2"

	// DefaultTimeout bounds each metadata request.
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit follows the API guideline of 60 requests per minute.
	DefaultRateLimit rate.Limit = 1

	// DefaultBurst allows short bursts above the steady rate.
	DefaultBurst = 5

	defaultUserAgent = "mappack/1.0"

	// maxResponseBytes caps the size of a decoded beatmap response.
	maxResponseBytes = 4 << 20
)

// invalidator is implemented by token providers that can drop a rejected token.
type invalidator interface {
	Invalidate(ctx context.Context)
}

// Client fetches beatmap metadata from the osu! API.
type Client struct {
	apiURL    string
	tokens    TokenProvider
	base      http.RoundTripper
	http      *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL sets the API base URL.
func WithAPIURL(apiURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(apiURL, "/")
	}
}

// WithTransport sets the transport used beneath the authenticating transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// WithRateLimit limits outbound requests. A non-positive limit disables
// rate limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithTimeout bounds each request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header for API requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger for client operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client that authenticates with tokens.
func NewClient(tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		apiURL:    DefaultAPIURL,
		tokens:    tokens,
		limiter:   rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		timeout:   DefaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = http.DefaultTransport
	}
	c.http = &http.Client{
		Transport: &authTransport{
			base:      c.base,
			tokens:    c.tokens,
			userAgent: c.userAgent,
		},
	}
	return c
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Beatmap fetches the metadata of the beatmap difficulty with the given id.
//
// A request rejected with 401 invalidates the token and is retried once with
// a fresh one. Returns ErrNotFound when the API does not know the beatmap, an
// error wrapping ErrCredentials when no token could be obtained, and a
// *StatusError for other non-success responses.
func (c *Client) Beatmap(ctx context.Context, id string) (*Beatmap, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	inv, canRetry := c.tokens.(invalidator)
	for attempt := 0; ; attempt++ {
		beatmap, err := c.fetchBeatmap(ctx, id)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
			return beatmap, err
		}
		if canRetry {
			inv.Invalidate(ctx)
		}
		if !canRetry || attempt > 0 {
			return nil, err
		}
		c.log().Debug("token rejected, retrying", "id", id)
	}
}

func (c *Client) fetchBeatmap(ctx context.Context, id string) (*Beatmap, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("osu: rate limit: %w", err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.apiURL + "/beatmaps/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osu: get beatmap %s: %w", id, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		// ok
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return nil, &StatusError{Op: "get beatmap " + id, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var beatmap Beatmap
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&beatmap); err != nil {
		return nil, fmt.Errorf("osu: decode beatmap %s: %w", id, err)
	}
	if beatmap.SetID() == 0 {
		return nil, fmt.Errorf("osu: beatmap %s: %w", id, errors.New("response has no beatmapset id"))
	}
	c.log().Debug("fetched beatmap", "id", id, "set_id", beatmap.SetID(), "version", beatmap.Version)
	return &beatmap, nil
}
