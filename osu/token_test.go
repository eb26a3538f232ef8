package osu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer is a fake OAuth token endpoint counting exchanges.
type tokenServer struct {
	*httptest.Server
	exchanges atomic.Int32
	fail      atomic.Bool
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" ||
			r.PostForm.Get("client_id") != "id" ||
			r.PostForm.Get("client_secret") != "secret" ||
			r.PostForm.Get("scope") != "public" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if ts.fail.Load() {
			http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
			return
		}
		n := ts.exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   86400,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestTokenSourceCachesToken(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL))
	ctx := context.Background()

	first, err := ts.Token(ctx)
	require.NoError(t, err)
	second, err := ts.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "token-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), server.exchanges.Load())
}

func TestTokenSourceWithoutCacheExchangesEveryCall(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL), WithTokenCacheTTL(0))
	ctx := context.Background()

	_, err := ts.Token(ctx)
	require.NoError(t, err)
	_, err = ts.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), server.exchanges.Load())
}

func TestTokenSourceInvalidate(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL))
	ctx := context.Background()

	_, err := ts.Token(ctx)
	require.NoError(t, err)
	ts.Invalidate(ctx)
	token, err := ts.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, "token-2", token)
}

func TestTokenSourceFailure(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.fail.Store(true)
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL))

	_, err := ts.Token(context.Background())
	assert.ErrorIs(t, err, ErrCredentials)
}

func TestTokenSourceWrongCredentials(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	ts := NewTokenSource("id", "wrong", WithTokenURL(server.URL))

	_, err := ts.Token(context.Background())
	assert.ErrorIs(t, err, ErrCredentials)
}

func TestTokenSourceCoalescesConcurrentExchanges(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := ts.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), server.exchanges.Load())
}

// memoryTokenStore is an in-memory TokenStore.
type memoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]string
	expires map[string]time.Time
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: map[string]string{}, expires: map[string]time.Time{}}
}

func (m *memoryTokenStore) GetToken(_ context.Context, key string) (string, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[key]
	return token, m.expires[key], ok, nil
}

func (m *memoryTokenStore) PutToken(_ context.Context, key, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = token
	m.expires[key] = expires
	return nil
}

func (m *memoryTokenStore) DeleteToken(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	delete(m.expires, key)
	return nil
}

func TestTokenSourceSharesTokensThroughStore(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	shared := newMemoryTokenStore()

	a := NewTokenSource("id", "secret", WithTokenURL(server.URL), WithTokenStore(shared))
	b := NewTokenSource("id", "secret", WithTokenURL(server.URL), WithTokenStore(shared))
	ctx := context.Background()

	tokenA, err := a.Token(ctx)
	require.NoError(t, err)
	tokenB, err := b.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, tokenA, tokenB)
	assert.Equal(t, int32(1), server.exchanges.Load())

	a.Invalidate(ctx)
	_, _, ok, err := shared.GetToken(ctx, a.cacheKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenSourceRefreshesSharedTokenNearExpiry(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	shared := newMemoryTokenStore()
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL), WithTokenStore(shared))
	ctx := context.Background()

	// Inside the default one-minute refresh window.
	require.NoError(t, shared.PutToken(ctx, ts.cacheKey(), "stale", time.Now().Add(5*time.Second)))

	for range 3 {
		token, err := ts.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	}
	assert.Equal(t, int32(1), server.exchanges.Load())

	token, _, ok, err := shared.GetToken(ctx, ts.cacheKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "token-1", token, "the refreshed token replaces the stale one")
}

func TestTokenSourceUsesFreshSharedToken(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	shared := newMemoryTokenStore()
	ts := NewTokenSource("id", "secret", WithTokenURL(server.URL), WithTokenStore(shared))
	ctx := context.Background()

	require.NoError(t, shared.PutToken(ctx, ts.cacheKey(), "shared", time.Now().Add(time.Hour)))

	token, err := ts.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared", token)
	assert.Zero(t, server.exchanges.Load())
}
