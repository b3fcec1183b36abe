package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestDeleteStalePartials(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, "diffusion_models", "flux1-dev-fp8.safetensors.part")
	fresh := filepath.Join(root, "vae", "ae.safetensors.part")
	complete := filepath.Join(root, "clip", "clip_l.safetensors")

	touch(t, stale, 10*24*time.Hour)
	touch(t, fresh, time.Hour)
	touch(t, complete, 30*24*time.Hour)

	removed, err := DeleteStalePartials(context.Background(), root, ".part", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, complete)
}

func TestDeleteStalePartialsMissingRoot(t *testing.T) {
	removed, err := DeleteStalePartials(context.Background(), filepath.Join(t.TempDir(), "absent"), ".part", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestDeleteStalePartialsCancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.part"), 48*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DeleteStalePartials(ctx, root, ".part", time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
