package blockstore

import (
	"context"
	"sync"

	"github.com/tieredcache/worker/pkg/atomic"
)

// LockMode distinguishes reader from writer locks on a block.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
)

// LockRecord is the bookkeeping entry behind a live lockId.
type LockRecord struct {
	LockID    uint64
	SessionID string
	BlockID   uint64
	Mode      LockMode
}

// blockLock is the per-block synchronization primitive. It is a plain
// RWMutex; the "cancellable acquire" behaviour lives in LockManager,
// which races the blocking acquire against ctx.Done().
type blockLock struct {
	mu sync.RWMutex
}

// LockManager grants and tracks read/write locks on committed block
// IDs. It is independent of, and always acquired before, the store's
// metadata lock.
type LockManager struct {
	nextLockID atomic.Uint64

	mu     sync.Mutex
	locks  map[uint64]*LockRecord
	blocks map[uint64]*blockLock
}

// NewLockManager constructs an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks:  map[uint64]*LockRecord{},
		blocks: map[uint64]*blockLock{},
	}
}

func (m *LockManager) blockLockFor(blockID uint64) *blockLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	bl, ok := m.blocks[blockID]
	if !ok {
		bl = &blockLock{}
		m.blocks[blockID] = bl
	}
	return bl
}

// Lock blocks until a lock of the given mode on blockID can be
// granted, or ctx is cancelled. On success it returns a fresh lockId
// that must later be passed to Unlock. On cancellation, the
// acquisition is abandoned: if the underlying mutex grants it after
// the fact anyway, a background goroutine releases it immediately so
// the lock is never leaked or left held by nobody.
func (m *LockManager) Lock(ctx context.Context, sessionID string, blockID uint64, mode LockMode) (uint64, error) {
	bl := m.blockLockFor(blockID)
	done := make(chan struct{})
	go func() {
		if mode == LockWrite {
			bl.mu.Lock()
		} else {
			bl.mu.RLock()
		}
		close(done)
	}()

	select {
	case <-done:
		lockID := m.nextLockID.Add(1)
		m.mu.Lock()
		m.locks[lockID] = &LockRecord{LockID: lockID, SessionID: sessionID, BlockID: blockID, Mode: mode}
		m.mu.Unlock()
		return lockID, nil
	case <-ctx.Done():
		go func() {
			<-done
			if mode == LockWrite {
				bl.mu.Unlock()
			} else {
				bl.mu.RUnlock()
			}
		}()
		return 0, ctx.Err()
	}
}

// Unlock releases a previously granted lock.
func (m *LockManager) Unlock(lockID uint64) error {
	m.mu.Lock()
	rec, ok := m.locks[lockID]
	if !ok {
		m.mu.Unlock()
		return NotFoundError("no lockId %d found", lockID)
	}
	delete(m.locks, lockID)
	bl := m.blocks[rec.BlockID]
	m.mu.Unlock()

	if rec.Mode == LockWrite {
		bl.mu.Unlock()
	} else {
		bl.mu.RUnlock()
	}
	return nil
}

// UnlockForSession releases every lock sessionID holds on blockID. It
// is a convenience used during session cleanup; unknown combinations
// are simply no-ops.
func (m *LockManager) UnlockForSession(sessionID string, blockID uint64) {
	m.mu.Lock()
	var toRelease []uint64
	for id, rec := range m.locks {
		if rec.SessionID == sessionID && rec.BlockID == blockID {
			toRelease = append(toRelease, id)
		}
	}
	m.mu.Unlock()
	for _, id := range toRelease {
		_ = m.Unlock(id)
	}
}

// GetLockedBlocks returns the set of blockIds with at least one
// active lock.
func (m *LockManager) GetLockedBlocks() map[uint64]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]struct{}, len(m.locks))
	for _, rec := range m.locks {
		out[rec.BlockID] = struct{}{}
	}
	return out
}

// CleanupSession releases every lock held by sessionID, regardless of
// which block it is held against.
func (m *LockManager) CleanupSession(sessionID string) {
	m.mu.Lock()
	var toRelease []uint64
	for id, rec := range m.locks {
		if rec.SessionID == sessionID {
			toRelease = append(toRelease, id)
		}
	}
	m.mu.Unlock()
	for _, id := range toRelease {
		_ = m.Unlock(id)
	}
}
