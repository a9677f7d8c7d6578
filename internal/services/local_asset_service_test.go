package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAssetService(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc, err := NewLocalAssetService(dir, "https://api.example.com/")
	require.NoError(t, err)

	t.Run("upload writes file and returns url", func(t *testing.T) {
		u, err := svc.Upload(ctx, "profiles/user%2F1/1_a.png", "image/png", []byte("data"))
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com/uploads/profiles/user%252F1/1_a.png", u)

		b, err := os.ReadFile(filepath.Join(dir, "profiles", "user%2F1", "1_a.png"))
		require.NoError(t, err)
		assert.Equal(t, "data", string(b))
	})

	t.Run("list reports uploads with their url", func(t *testing.T) {
		objs, err := svc.List(ctx, AssetPrefix)
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, "profiles/user%2F1/1_a.png", objs[0].Path)
		assert.Equal(t, []string{svc.URLFor("profiles/user%2F1/1_a.png")}, objs[0].URLs)
		assert.False(t, objs[0].Created.IsZero())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "profiles/user%2F1/1_a.png"))
		require.NoError(t, svc.Delete(ctx, "profiles/user%2F1/1_a.png"))

		objs, err := svc.List(ctx, AssetPrefix)
		require.NoError(t, err)
		assert.Empty(t, objs)
	})

	t.Run("paths escaping the upload dir are rejected", func(t *testing.T) {
		for _, p := range []string{"../evil.png", "/abs/path.png", "profiles/../../x", "", "profiles//x.png"} {
			_, err := svc.Upload(ctx, p, "image/png", []byte("x"))
			assert.ErrorIs(t, err, ErrInvalidAssetPath, p)
		}
	})

	t.Run("list on empty dir", func(t *testing.T) {
		empty, err := NewLocalAssetService(t.TempDir(), "http://localhost")
		require.NoError(t, err)
		objs, err := empty.List(ctx, AssetPrefix)
		require.NoError(t, err)
		assert.Empty(t, objs)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Upload(cctx, "profiles/u/1_b.png", "image/png", []byte("x"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
