// Package fileops provides concrete FileOps implementations consumed
// by package blockstore: one backed by the local filesystem, one
// backed by an S3-compatible object store.
package fileops

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tieredcache/worker/pkg/blockstore"
)

// Local is a FileOps backed directly by the local filesystem. It is
// the collaborator used for the fast (memory-backed tmpfs, SSD)
// tiers.
type Local struct{}

// NewLocal constructs a Local FileOps.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, mapErr(err, path)
	}
	return true, nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return mapErr(err, path)
	}
	return nil
}

func (l *Local) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return mapErr(err, newPath)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return mapErr(err, oldPath)
	}
	return nil
}

func (l *Local) Size(ctx context.Context, path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, mapErr(err, path)
	}
	return uint64(info.Size()), nil
}

func (l *Local) CreateWriter(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, mapErr(err, path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, mapErr(err, path)
	}
	return f, nil
}

func (l *Local) ListDir(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mapErr(err, path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func mapErr(err error, path string) error {
	if os.IsNotExist(err) {
		return status.Errorf(codes.NotFound, "%s: %s", path, err)
	}
	return status.Errorf(codes.Internal, "%s: %s", path, err)
}

var _ blockstore.FileOps = (*Local)(nil)
