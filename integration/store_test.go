//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mappack"
	"github.com/meigma/mappack/store"
	"github.com/meigma/mappack/store/oci"
	"github.com/meigma/mappack/store/s3"
)

// exerciseStore runs the store contract against s.
func exerciseStore(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	name := strings.Repeat("ab", 32) + mappack.ObjectExt
	data := []byte("PK\x05\x06 pack bytes")

	ok, err := s.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, name)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Put(ctx, name, data, mappack.ContentTypeZip))
	// Puts are idempotent for equal content.
	require.NoError(t, s.Put(ctx, name, data, mappack.ContentTypeZip))

	ok, err = s.Exists(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, name)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.ErrorIs(t, s.Put(ctx, "../escape.zip", data, mappack.ContentTypeZip), store.ErrInvalidName)
}

func TestS3Store(t *testing.T) {
	cfg := newBucket(t, "packs-store")
	cfg.Prefix = "mappacks/"

	s, err := s3.New(context.Background(), cfg)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOCIStore(t *testing.T) {
	addr := getRegistry(t)

	s, err := oci.NewRemote(oci.RemoteConfig{
		Repository: fmt.Sprintf("%s/test/%s", addr, strings.ToLower(t.Name())),
		PlainHTTP:  true,
	})
	require.NoError(t, err)
	exerciseStore(t, s)
}
