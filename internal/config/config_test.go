package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mappack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	cfg := Default()
	cfg.InternalKey = "k"
	cfg.PublicBaseURL = "https://packs.example.com"
	cfg.Osu.ClientID = "id"
	cfg.Osu.ClientSecret = "secret"
	return cfg
}

func TestDefaultsNeedSecrets(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal_key")
	assert.Contains(t, err.Error(), "public_base_url")
	assert.Contains(t, err.Error(), "osu.client_id")

	require.NoError(t, validConfig().Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
internal_key: file-key
public_base_url: https://cdn.example.com/packs
log:
  level: debug
  format: text
osu:
  client_id: "123"
  client_secret: s3cret
  timeout: 3s
  token_cache_ttl: 0s
mirrors:
  urls:
    - https://mirror-a.example.com/d
    - https://mirror-b.example.com/beatmapsets/{id}/download
build:
  concurrency: 4
  compression: store
store:
  type: s3
  s3:
    bucket: mappacks
    endpoint: https://account.r2.cloudflarestorage.com
server:
  serve_packs: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3*time.Second, cfg.Osu.Timeout)
	assert.Zero(t, cfg.Osu.TokenCacheTTL)
	assert.Len(t, cfg.Mirrors.URLs, 2)
	assert.Equal(t, 4, cfg.Build.Concurrency)
	assert.Equal(t, StoreS3, cfg.Store.Type)
	assert.Equal(t, "mappacks", cfg.Store.S3.Bucket)
	assert.True(t, cfg.Server.ServePacks)

	// Untouched values keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Build.Timeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
}

func TestLoadFileUnknownKey(t *testing.T) {
	path := writeConfig(t, "listn: \":9000\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INTERNAL_KEY", "env-key")
	t.Setenv("PUBLIC_BASE_URL", "https://env.example.com")
	t.Setenv("OSU_ID", "env-id")
	t.Setenv("OSU_SECRET", "env-secret")
	t.Setenv("MAPPACK_LISTEN", "127.0.0.1:7000")
	t.Setenv("MAPPACK_REDIS_ADDR", "redis:6379")

	path := writeConfig(t, "internal_key: file-key\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "env-key", cfg.InternalKey)
	assert.Equal(t, "https://env.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "env-id", cfg.Osu.ClientID)
	assert.Equal(t, "env-secret", cfg.Osu.ClientSecret)
	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.PublicBaseURL = "packs.example.com" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"no mirrors", func(c *Config) { c.Mirrors.URLs = nil }},
		{"bad mirror", func(c *Config) { c.Mirrors.URLs = []string{"not a url"} }},
		{"zero concurrency", func(c *Config) { c.Build.Concurrency = 0 }},
		{"bad compression", func(c *Config) { c.Build.Compression = "zstd" }},
		{"unknown store", func(c *Config) { c.Store.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Store.Type = StoreS3 }},
		{"gcs without bucket", func(c *Config) { c.Store.Type = StoreGCS }},
		{"oci without repository", func(c *Config) { c.Store.Type = StoreOCI }},
		{"disk without dir", func(c *Config) { c.Store.Disk.Dir = "" }},
		{"negative rate", func(c *Config) { c.Osu.RateLimit = -1 }},
		{"zero body cap", func(c *Config) { c.Server.MaxBodyBytes = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"build outlasts write timeout", func(c *Config) { c.Build.Timeout = 10 * time.Minute }},
		{"build equals write timeout", func(c *Config) { c.Build.Timeout = c.Server.WriteTimeout }},
		{"unbounded build", func(c *Config) { c.Build.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateWriteTimeoutDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Server.WriteTimeout = 0
	cfg.Build.Timeout = time.Hour
	assert.NoError(t, cfg.Validate())
}
