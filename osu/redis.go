package osu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "mappack:osu-token:"

// RedisTokenStore shares access tokens between replicas through Redis.
// Entries expire in Redis together with the token.
type RedisTokenStore struct {
	client redis.Cmdable
	prefix string
}

var _ TokenStore = (*RedisTokenStore)(nil)

// redisToken is the stored representation of a token.
type redisToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// NewRedisTokenStore creates a store using client. An empty prefix selects
// the default key prefix.
func NewRedisTokenStore(client redis.Cmdable, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisTokenStore{client: client, prefix: prefix}
}

// GetToken returns the stored token for key.
func (s *RedisTokenStore) GetToken(ctx context.Context, key string) (string, time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("redis get token: %w", err)
	}

	var tok redisToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", time.Time{}, false, fmt.Errorf("redis decode token: %w", err)
	}
	if tok.AccessToken == "" || (!tok.Expiry.IsZero() && !time.Now().Before(tok.Expiry)) {
		return "", time.Time{}, false, nil
	}
	return tok.AccessToken, tok.Expiry, true, nil
}

// PutToken stores token under key until expires. Tokens without an expiry
// are not shared.
func (s *RedisTokenStore) PutToken(ctx context.Context, key, token string, expires time.Time) error {
	if expires.IsZero() {
		return nil
	}
	ttl := time.Until(expires)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(redisToken{AccessToken: token, Expiry: expires})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// DeleteToken removes the token stored under key.
func (s *RedisTokenStore) DeleteToken(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}
