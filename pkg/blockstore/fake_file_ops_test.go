package blockstore_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tieredcache/worker/pkg/blockstore"
)

// fakeFileOps is an in-memory FileOps double used by this package's
// tests, in place of a generated mock.
type fakeFileOps struct {
	mu    sync.Mutex
	files map[string][]byte

	// failRename, when set, is consulted before every Rename call; a
	// non-nil return fails the call with that error and leaves the
	// fake's state untouched. Used to exercise eviction-plan rollback.
	failRename func(oldPath, newPath string) error
}

func newFakeFileOps() *fakeFileOps {
	return &fakeFileOps{files: map[string][]byte{}}
}

func (f *fakeFileOps) Exists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeFileOps) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		return blockstore.NotFoundError("no file at %q", path)
	}
	delete(f.files, path)
	return nil
}

func (f *fakeFileOps) Rename(ctx context.Context, oldPath, newPath string) error {
	if f.failRename != nil {
		if err := f.failRename(oldPath, newPath); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[oldPath]
	if !ok {
		return blockstore.NotFoundError("no file at %q", oldPath)
	}
	f.files[newPath] = data
	delete(f.files, oldPath)
	return nil
}

func (f *fakeFileOps) Size(ctx context.Context, path string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return 0, blockstore.NotFoundError("no file at %q", path)
	}
	return uint64(len(data)), nil
}

func (f *fakeFileOps) CreateWriter(ctx context.Context, path string) (io.WriteCloser, error) {
	f.mu.Lock()
	if _, ok := f.files[path]; !ok {
		f.files[path] = nil
	}
	f.mu.Unlock()
	return &fakeWriter{fo: f, path: path}, nil
}

func (f *fakeFileOps) ListDir(ctx context.Context, path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := path + "/"
	seen := map[string]struct{}{}
	for p := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			seen[rest[:idx]] = struct{}{}
		} else {
			seen[rest] = struct{}{}
		}
	}
	// A path with no files under it lists as an empty dir, the way an
	// existing but empty directory lists on a local disk.
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

type fakeWriter struct {
	fo   *fakeFileOps
	path string
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.fo.mu.Lock()
	defer w.fo.mu.Unlock()
	w.fo.files[w.path] = append(w.fo.files[w.path], p...)
	return len(p), nil
}

func (w *fakeWriter) Close() error {
	return nil
}
