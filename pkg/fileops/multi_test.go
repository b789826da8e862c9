package fileops_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tieredcache/worker/pkg/fileops"
)

func TestMultiRoutesLocalPaths(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	m := fileops.NewMulti(fileops.NewLocal(), nil)

	path := filepath.Join(root, "1")
	w, err := m.CreateWriter(ctx, path)
	require.NoError(t, err)
	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	exists, err := m.Exists(ctx, path)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestMultiRejectsS3PathsWithoutBackend(t *testing.T) {
	ctx := context.Background()
	m := fileops.NewMulti(fileops.NewLocal(), nil)

	_, err := m.Exists(ctx, "s3://blocks/1")
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestMultiRejectsCrossBackendRename(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	m := fileops.NewMulti(fileops.NewLocal(), fileops.NewS3(nil, "blocks"))

	err := m.Rename(ctx, filepath.Join(root, "1"), "s3://blocks/1")
	require.Error(t, err)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}
