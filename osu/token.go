package osu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenURL is the osu! OAuth token endpoint.
	DefaultTokenURL = "https://osu.ppy.sh/oauth/token"

	// DefaultScope grants read access to public API data.
	DefaultScope = "public"

	// defaultExpirySkew refreshes tokens slightly before the server expires them.
	defaultExpirySkew = time.Minute
)

// TokenProvider supplies bearer tokens for API requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenStore shares tokens between processes.
type TokenStore interface {
	// GetToken returns the stored token for key and its expiry.
	// ok is false when no unexpired token is stored.
	GetToken(ctx context.Context, key string) (token string, expires time.Time, ok bool, err error)

	// PutToken stores token under key until expires.
	PutToken(ctx context.Context, key, token string, expires time.Time) error

	// DeleteToken removes the token stored under key.
	DeleteToken(ctx context.Context, key string) error
}

// TokenSource exchanges client credentials for access tokens using the
// client-credentials grant.
//
// Tokens are cached in memory until shortly before they expire and, when a
// TokenStore is configured, shared with other processes. Concurrent callers
// that miss the cache wait on a single exchange. With the cache disabled and
// no store, every call performs a fresh exchange.
type TokenSource struct {
	config     clientcredentials.Config
	cache      *tokenCache
	shared     TokenStore
	httpClient *http.Client
	skew       time.Duration
	group      singleflight.Group
	logger     *slog.Logger
}

var _ TokenProvider = (*TokenSource)(nil)

// TokenOption configures a TokenSource.
type TokenOption func(*TokenSource)

// WithTokenURL sets the token endpoint.
func WithTokenURL(tokenURL string) TokenOption {
	return func(ts *TokenSource) {
		ts.config.TokenURL = tokenURL
	}
}

// WithScopes sets the requested scopes. Defaults to "public".
func WithScopes(scopes ...string) TokenOption {
	return func(ts *TokenSource) {
		ts.config.Scopes = scopes
	}
}

// WithTokenCacheTTL caps how long a token is served from memory.
// Zero disables the in-memory cache.
func WithTokenCacheTTL(ttl time.Duration) TokenOption {
	return func(ts *TokenSource) {
		ts.cache = newTokenCache(ttl)
	}
}

// WithTokenStore shares tokens through store.
func WithTokenStore(store TokenStore) TokenOption {
	return func(ts *TokenSource) {
		ts.shared = store
	}
}

// WithTokenHTTPClient sets the HTTP client used for the exchange.
func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(ts *TokenSource) {
		ts.httpClient = client
	}
}

// WithExpirySkew sets how long before expiry a cached token is refreshed.
func WithExpirySkew(d time.Duration) TokenOption {
	return func(ts *TokenSource) {
		ts.skew = d
	}
}

// WithTokenLogger sets the logger for token operations.
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(ts *TokenSource) {
		ts.logger = logger
	}
}

// NewTokenSource creates a token source for the given client credentials.
func NewTokenSource(clientID, clientSecret string, opts ...TokenOption) *TokenSource {
	ts := &TokenSource{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     DefaultTokenURL,
			Scopes:       []string{DefaultScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		cache: newTokenCache(defaultTokenCacheTTL),
		skew:  defaultExpirySkew,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// log returns the logger, falling back to a discard logger if nil.
func (ts *TokenSource) log() *slog.Logger {
	if ts.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return ts.logger
}

// Token returns a valid access token.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	key := ts.cacheKey()
	if token, ok := ts.cached(key); ok {
		return token, nil
	}
	if ts.cache == nil && ts.shared == nil {
		token, _, err := ts.exchange(ctx)
		return token, err
	}

	v, err, _ := ts.group.Do(key, func() (any, error) {
		if token, ok := ts.cached(key); ok {
			return token, nil
		}
		if ts.shared != nil {
			token, expires, ok, err := ts.shared.GetToken(ctx, key)
			switch {
			case err != nil:
				ts.log().Warn("shared token lookup failed", "error", err)
			case ok && ts.fresh(expires):
				ts.remember(key, token, expires)
				return token, nil
			case ok:
				ts.log().Debug("shared token expires soon, refreshing", "expires", expires)
			}
		}

		token, expires, err := ts.exchange(ctx)
		if err != nil {
			return "", err
		}
		ts.remember(key, token, expires)
		if ts.shared != nil {
			if err := ts.shared.PutToken(ctx, key, token, expires); err != nil {
				ts.log().Warn("shared token store failed", "error", err)
			}
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

// Invalidate drops the current token so the next call exchanges a new one.
func (ts *TokenSource) Invalidate(ctx context.Context) {
	key := ts.cacheKey()
	if ts.cache != nil {
		ts.cache.invalidate(key)
	}
	if ts.shared != nil {
		if err := ts.shared.DeleteToken(ctx, key); err != nil {
			ts.log().Warn("shared token delete failed", "error", err)
		}
	}
}

func (ts *TokenSource) cached(key string) (string, bool) {
	if ts.cache == nil {
		return "", false
	}
	return ts.cache.get(key)
}

// fresh reports whether a token expiring at expires is outside the refresh
// window. A zero expiry never expires.
func (ts *TokenSource) fresh(expires time.Time) bool {
	return expires.IsZero() || expires.After(time.Now().Add(ts.skew))
}

func (ts *TokenSource) remember(key, token string, expires time.Time) {
	if ts.cache == nil {
		return
	}
	if !expires.IsZero() {
		expires = expires.Add(-ts.skew)
	}
	ts.cache.set(key, token, expires)
}

func (ts *TokenSource) exchange(ctx context.Context) (string, time.Time, error) {
	if ts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.httpClient)
	}
	tok, err := ts.config.Token(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrCredentials, errors.New("empty access token"))
	}
	ts.log().Debug("exchanged client credentials", "expires", tok.Expiry)
	return tok.AccessToken, tok.Expiry, nil
}

func (ts *TokenSource) cacheKey() string {
	return ts.config.ClientID + ":" + strings.Join(ts.config.Scopes, " ")
}
