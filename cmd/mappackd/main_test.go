package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mappack/internal/config"
	"github.com/meigma/mappack/store/disk"
	"github.com/meigma/mappack/store/memory"
)

func TestParseFlags(t *testing.T) {
	t.Setenv(config.ConfigEnv, "/etc/mappack.yaml")

	f, err := parseFlags([]string{"--listen", ":9090", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/mappack.yaml", f.configPath)
	assert.Equal(t, ":9090", f.listen)
	assert.Equal(t, "debug", f.logLevel)

	f, err = parseFlags([]string{"-c", "local.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "local.yaml", f.configPath)

	_, err = parseFlags([]string{"extra"})
	assert.Error(t, err)
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
internal_key: secret
public_base_url: https://packs.example.com
osu:
  client_id: "1"
  client_secret: s
listen: ":7000"
`), 0o600))

	cfg, err := loadConfig(flags{configPath: path, listen: ":9090", logFormat: "text"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)

	_, err = loadConfig(flags{configPath: path, logFormat: "xml"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	s, closeFn, err := openStore(ctx, config.StoreConfig{
		Type: config.StoreDisk,
		Disk: config.DiskStoreConfig{Dir: filepath.Join(t.TempDir(), "packs")},
	}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &disk.Store{}, s)

	s, closeFn, err = openStore(ctx, config.StoreConfig{Type: config.StoreMemory}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &memory.Store{}, s)

	_, _, err = openStore(ctx, config.StoreConfig{Type: "ftp"}, logger)
	assert.Error(t, err)
}
