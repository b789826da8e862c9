package fileops_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tieredcache/worker/pkg/fileops"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := fileops.NewLocal()

	path := filepath.Join(root, "tmp", "session-a", "1")
	w, err := l.CreateWriter(ctx, path)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	exists, err := l.Exists(ctx, path)
	require.NoError(t, err)
	require.True(t, exists)

	size, err := l.Size(ctx, path)
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)

	commitPath := filepath.Join(root, "1")
	require.NoError(t, l.Rename(ctx, path, commitPath))

	exists, err = l.Exists(ctx, path)
	require.NoError(t, err)
	require.False(t, exists)

	names, err := l.ListDir(ctx, root)
	require.NoError(t, err)
	require.Contains(t, names, "1")

	require.NoError(t, l.Delete(ctx, commitPath))
	_, err = l.Size(ctx, commitPath)
	require.Error(t, err)
}

func TestLocalMissingFile(t *testing.T) {
	ctx := context.Background()
	l := fileops.NewLocal()
	_, err := l.Size(ctx, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
