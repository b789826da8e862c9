package blockstore

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/tieredcache/worker/pkg/util"
)

// boundedRunner bounds the number of goroutines running concurrently,
// using a weighted semaphore the way the rest of this codebase bounds
// concurrent blocking work.
type boundedRunner struct {
	sem *semaphore.Weighted
}

func newBoundedRunner(maxConcurrency int64) *boundedRunner {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &boundedRunner{sem: semaphore.NewWeighted(maxConcurrency)}
}

// Go runs fn in a new goroutine once a slot is available. If ctx is
// already cancelled when a slot would otherwise be granted, fn still
// runs; callers are expected to check ctx themselves if they want to
// bail out early. This mirrors util.AcquireSemaphore's best-effort
// cancellation contract: it only guards against blocking forever on
// Acquire, not against doing the work at all.
func (r *boundedRunner) Go(ctx context.Context, fn func()) {
	if err := util.AcquireSemaphore(ctx, r.sem, 1); err != nil {
		go fn()
		return
	}
	go func() {
		defer r.sem.Release(1)
		fn()
	}()
}
