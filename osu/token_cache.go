package osu

import (
	"sync"
	"time"
)

const defaultTokenCacheTTL = 12 * time.Hour

// tokenCache holds the access token of one TokenSource. The entry lives until
// the earlier of the token's own expiry and the cache TTL. It is safe for
// concurrent use.
type tokenCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	entry *cachedToken
	now   func() time.Time
}

// cachedToken represents the cached access token.
type cachedToken struct {
	key     string
	value   string
	expires time.Time
}

// newTokenCache creates a token cache with the given TTL cap.
// Returns nil if ttl is zero or negative, which disables caching.
func newTokenCache(ttl time.Duration) *tokenCache {
	if ttl <= 0 {
		return nil
	}
	return &tokenCache{ttl: ttl, now: time.Now}
}

// get returns the cached token if it was stored under key and is unexpired.
func (c *tokenCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil || c.entry.key != key {
		return "", false
	}
	if !c.now().Before(c.entry.expires) {
		c.entry = nil
		return "", false
	}
	return c.entry.value, true
}

// set stores a token that is valid until expires, replacing any cached token.
// Tokens that are already expired are not stored.
func (c *tokenCache) set(key, value string, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if limit := now.Add(c.ttl); expires.IsZero() || expires.After(limit) {
		expires = limit
	}
	if !now.Before(expires) {
		return
	}
	c.entry = &cachedToken{key: key, value: value, expires: expires}
}

// invalidate removes the cached token if it was stored under key.
func (c *tokenCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry != nil && c.entry.key == key {
		c.entry = nil
	}
}
