package blockstore

import (
	"context"
	"io"
	"sync"

	"github.com/tieredcache/worker/pkg/util"
)

// TieredBlockStore is the façade coordinating metadata, locking and
// eviction to implement the block store's public operations. It never
// acquires a per-block lock while holding metadataLock: per-block
// locks are always acquired first, to avoid deadlock with callers
// that hold a lock while another goroutine waits on metadataLock.
type TieredBlockStore struct {
	metadataLock sync.RWMutex

	metadata *BlockMetadataManager
	locks    *LockManager
	evictor  Evictor
	fileOps  FileOps

	access *accessSet

	listenersMu sync.Mutex
	listeners   []Listener

	errorLogger util.ErrorLogger
}

// NewTieredBlockStore wires together the components that make up a
// tiered block store. discoveredBlockIDs should list the blocks found
// by a prior metadata.ScanStartup call, in ascending order, so they
// seed the LRU access set in the tie-break order newly-discovered
// blocks are defined to use.
func NewTieredBlockStore(metadata *BlockMetadataManager, locks *LockManager, evictor Evictor, fileOps FileOps, discoveredBlockIDs []uint64, errorLogger util.ErrorLogger) *TieredBlockStore {
	access := newAccessSet()
	for _, id := range discoveredBlockIDs {
		access.Insert(id)
	}
	return &TieredBlockStore{
		metadata:    metadata,
		locks:       locks,
		evictor:     evictor,
		fileOps:     fileOps,
		access:      access,
		errorLogger: errorLogger,
	}
}

// AddListener registers l to be notified synchronously after every
// commit, abort, move and remove.
func (s *TieredBlockStore) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *TieredBlockStore) notify(e Event) {
	s.listenersMu.Lock()
	ls := append([]Listener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, l := range ls {
		l.OnBlockEvent(e)
	}
}

// CreateBlockMeta creates a new temp block owned by sessionId at
// location, with an initial reservation of initialSize bytes,
// admitting space under eviction if necessary.
func (s *TieredBlockStore) CreateBlockMeta(ctx context.Context, sessionID string, blockID uint64, location Location, initialSize uint64) (*TempBlockMeta, error) {
	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()

	if s.metadata.HasBlockMeta(blockID) || s.metadata.HasTempBlockMeta(blockID) {
		return nil, AlreadyExistsError("blockId %d already known", blockID)
	}

	dir, err := s.metadata.GetEligibleDir(location, initialSize)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		if err := s.admitSpaceLocked(ctx, location, initialSize); err != nil {
			return nil, err
		}
		dir, err = s.metadata.GetEligibleDir(location, initialSize)
		if err != nil {
			return nil, err
		}
		if dir == nil {
			return nil, OutOfSpaceError("no eligible dir in %s even after eviction", location)
		}
	}
	return s.metadata.CreateTempBlockMeta(dir, blockID, sessionID, initialSize)
}

// GetBlockWriter returns a writer appending to the temp file backing
// blockID. It does not reserve any additional space; callers must
// call RequestSpace first.
func (s *TieredBlockStore) GetBlockWriter(ctx context.Context, sessionID string, blockID uint64) (io.WriteCloser, error) {
	s.metadataLock.RLock()
	tb, err := s.metadata.GetTempBlockMeta(blockID)
	s.metadataLock.RUnlock()
	if err != nil {
		return nil, err
	}
	if tb.OwnerSessionID != sessionID {
		return nil, InvalidStateError("session %q does not own temp blockId %d", sessionID, blockID)
	}
	w, err := s.fileOps.CreateWriter(ctx, TempPath(tb.Dir, sessionID, blockID))
	if err != nil {
		return nil, IOError(err, "failed to open writer for temp blockId %d", blockID)
	}
	return w, nil
}

// RequestSpace grows the reservation for an existing temp block by
// additionalBytes, admitting space in its own dir under eviction if
// necessary.
func (s *TieredBlockStore) RequestSpace(ctx context.Context, sessionID string, blockID uint64, additionalBytes uint64) error {
	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()

	tb, err := s.metadata.GetTempBlockMeta(blockID)
	if err != nil {
		return err
	}
	if tb.OwnerSessionID != sessionID {
		return InvalidStateError("session %q does not own temp blockId %d", sessionID, blockID)
	}

	newSize := tb.Size + additionalBytes
	if tb.Dir.AvailableBytes() >= additionalBytes {
		return s.metadata.ResizeTempBlockMeta(blockID, newSize)
	}

	dirLocation := tb.Dir.Location()
	if err := s.admitSpaceLocked(ctx, dirLocation, additionalBytes); err != nil {
		return err
	}
	return s.metadata.ResizeTempBlockMeta(blockID, newSize)
}

// CommitBlock transitions a temp block to a permanent, committed
// block at its current size.
func (s *TieredBlockStore) CommitBlock(ctx context.Context, sessionID string, blockID uint64) error {
	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()

	if s.metadata.HasBlockMeta(blockID) {
		return AlreadyExistsError("blockId %d already committed", blockID)
	}
	tb, err := s.metadata.GetTempBlockMeta(blockID)
	if err != nil {
		return err
	}
	if tb.OwnerSessionID != sessionID {
		return InvalidStateError("session %q does not own temp blockId %d", sessionID, blockID)
	}

	if err := s.fileOps.Rename(ctx, TempPath(tb.Dir, sessionID, blockID), CommitPath(tb.Dir, blockID)); err != nil {
		return IOError(err, "failed to commit blockId %d", blockID)
	}
	if _, err := s.metadata.CommitTempBlock(tb); err != nil {
		return err
	}
	if !s.access.Contains(blockID) {
		s.access.Insert(blockID)
	} else {
		s.access.Touch(blockID)
	}
	s.notify(Event{Kind: EventCommitted, BlockID: blockID, Location: tb.Dir.Location()})
	return nil
}

// AbortBlock discards an in-progress temp block.
func (s *TieredBlockStore) AbortBlock(ctx context.Context, sessionID string, blockID uint64) error {
	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()

	if s.metadata.HasBlockMeta(blockID) {
		return AlreadyExistsError("blockId %d already committed", blockID)
	}
	tb, err := s.metadata.GetTempBlockMeta(blockID)
	if err != nil {
		return err
	}
	if tb.OwnerSessionID != sessionID {
		return InvalidStateError("session %q does not own temp blockId %d", sessionID, blockID)
	}

	if err := s.fileOps.Delete(ctx, TempPath(tb.Dir, sessionID, blockID)); err != nil {
		return IOError(err, "failed to abort blockId %d", blockID)
	}
	if err := s.metadata.AbortTempBlock(tb); err != nil {
		return err
	}
	s.notify(Event{Kind: EventAborted, BlockID: blockID, Location: tb.Dir.Location()})
	return nil
}

// MoveBlock relocates a committed block to newLocation, blocking
// until any active readers of it have drained.
func (s *TieredBlockStore) MoveBlock(ctx context.Context, sessionID string, blockID uint64, newLocation Location) error {
	lockID, err := s.locks.Lock(ctx, sessionID, blockID, LockWrite)
	if err != nil {
		return util.StatusFromContext(ctx)
	}
	defer s.locks.Unlock(lockID)

	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()

	bm, err := s.metadata.GetBlockMeta(blockID)
	if err != nil {
		return err
	}

	newDir, err := s.metadata.GetEligibleDir(newLocation, bm.Size)
	if err != nil {
		return err
	}
	if newDir == nil {
		pinSet := s.locks.GetLockedBlocks()
		delete(pinSet, blockID)
		if err := s.admitSpaceLockedWithPinSet(ctx, newLocation, bm.Size, pinSet); err != nil {
			return err
		}
		newDir, err = s.metadata.GetEligibleDir(newLocation, bm.Size)
		if err != nil {
			return err
		}
		if newDir == nil {
			return OutOfSpaceError("no eligible dir in %s even after eviction", newLocation)
		}
	}

	if err := s.fileOps.Rename(ctx, CommitPath(bm.Dir, blockID), CommitPath(newDir, blockID)); err != nil {
		return IOError(err, "failed to move blockId %d", blockID)
	}
	if err := s.metadata.MoveBlockMeta(bm, newDir); err != nil {
		return err
	}
	s.notify(Event{Kind: EventMoved, BlockID: blockID, Location: newLocation})
	return nil
}

// RemoveBlock deletes a committed block entirely, blocking until any
// active readers of it have drained.
func (s *TieredBlockStore) RemoveBlock(ctx context.Context, sessionID string, blockID uint64) error {
	lockID, err := s.locks.Lock(ctx, sessionID, blockID, LockWrite)
	if err != nil {
		return util.StatusFromContext(ctx)
	}
	defer s.locks.Unlock(lockID)

	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()

	if s.metadata.HasTempBlockMeta(blockID) {
		return InvalidStateError("blockId %d is a temp block, not committed", blockID)
	}
	bm, err := s.metadata.GetBlockMeta(blockID)
	if err != nil {
		return err
	}

	if err := s.fileOps.Delete(ctx, CommitPath(bm.Dir, blockID)); err != nil {
		return IOError(err, "failed to remove blockId %d", blockID)
	}
	if err := s.metadata.RemoveBlockMeta(bm); err != nil {
		return err
	}
	s.access.Remove(blockID)
	s.notify(Event{Kind: EventRemoved, BlockID: blockID, Location: bm.Dir.Location()})
	return nil
}

// FreeSpace runs the eviction algorithm directly, leaving at least
// bytes available in one dir of location on behalf of sessionID.
func (s *TieredBlockStore) FreeSpace(ctx context.Context, sessionID string, bytes uint64, location Location) error {
	s.metadataLock.Lock()
	defer s.metadataLock.Unlock()
	return s.admitSpaceLocked(ctx, location, bytes)
}

// LockBlock acquires a read or write lock on a committed block,
// blocking until it can be granted or ctx is cancelled.
func (s *TieredBlockStore) LockBlock(ctx context.Context, sessionID string, blockID uint64, mode LockMode) (uint64, error) {
	s.metadataLock.RLock()
	has := s.metadata.HasBlockMeta(blockID)
	s.metadataLock.RUnlock()
	if !has {
		return 0, NotFoundError("no blockId %d found", blockID)
	}
	lockID, err := s.locks.Lock(ctx, sessionID, blockID, mode)
	if err != nil {
		return 0, util.StatusFromContext(ctx)
	}
	if mode == LockRead {
		s.metadataLock.Lock()
		if !s.access.Contains(blockID) {
			s.access.Insert(blockID)
		} else {
			s.access.Touch(blockID)
		}
		s.metadataLock.Unlock()
	}
	return lockID, nil
}

// UnlockBlock releases a lock previously acquired via LockBlock.
func (s *TieredBlockStore) UnlockBlock(lockID uint64) error {
	return s.locks.Unlock(lockID)
}

// CleanupSession releases every lock sessionID holds, and aborts
// every temp block it still owns. Failures during temp-block cleanup
// are reported via the store's error logger rather than returned,
// since cleanup is best-effort.
func (s *TieredBlockStore) CleanupSession(ctx context.Context, sessionID string) {
	s.locks.CleanupSession(sessionID)

	s.metadataLock.RLock()
	var owned []*TempBlockMeta
	for _, t := range s.metadata.Tiers() {
		for _, d := range t.Dirs {
			owned = append(owned, d.ListTempBlocks(sessionID)...)
		}
	}
	s.metadataLock.RUnlock()

	for _, tb := range owned {
		if err := s.AbortBlock(ctx, sessionID, tb.BlockID); err != nil {
			s.errorLogger.Log(util.StatusWrapf(err, "failed to abort temp blockId %d during session %q cleanup", tb.BlockID, sessionID))
		}
	}
}

// HasBlockMeta reports whether blockID is currently committed.
func (s *TieredBlockStore) HasBlockMeta(blockID uint64) bool {
	s.metadataLock.RLock()
	defer s.metadataLock.RUnlock()
	return s.metadata.HasBlockMeta(blockID)
}

// GetBlockMeta returns a snapshot of a committed block's metadata.
func (s *TieredBlockStore) GetBlockMeta(blockID uint64) (*BlockMeta, error) {
	s.metadataLock.RLock()
	defer s.metadataLock.RUnlock()
	return s.metadata.GetBlockMeta(blockID)
}

// GetBlockStoreMeta returns a snapshot of the whole store's
// occupancy.
func (s *TieredBlockStore) GetBlockStoreMeta() *StoreMeta {
	s.metadataLock.RLock()
	defer s.metadataLock.RUnlock()
	return s.metadata.GetBlockStoreMeta()
}

// admitSpaceLocked runs the space-admission algorithm against
// location, pinning every currently locked block. Callers must hold
// metadataLock for writing.
func (s *TieredBlockStore) admitSpaceLocked(ctx context.Context, location Location, requiredBytes uint64) error {
	return s.admitSpaceLockedWithPinSet(ctx, location, requiredBytes, s.locks.GetLockedBlocks())
}

// appliedMove records a relocation admitSpaceLockedWithPinSet has
// already carried out, so it can be undone if a later step in the
// same plan fails.
type appliedMove struct {
	blockID uint64
	oldDir  *StorageDir
	newDir  *StorageDir
}

// undoMoves reverses previously applied relocations in last-applied-
// first order, on a best-effort basis: a failure while undoing one
// move is reported to the error logger and does not stop the rest of
// the unwind. Evictions are never undone here, matching the plan's
// delete-is-permanent contract: once a committed block's file is
// deleted there is nothing left to rename back.
func (s *TieredBlockStore) undoMoves(ctx context.Context, applied []appliedMove) {
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if err := s.fileOps.Rename(ctx, CommitPath(a.newDir, a.blockID), CommitPath(a.oldDir, a.blockID)); err != nil {
			s.errorLogger.Log(util.StatusWrapf(err, "failed to roll back relocation of blockId %d after a failed eviction plan", a.blockID))
			continue
		}
		bm, err := s.metadata.GetBlockMeta(a.blockID)
		if err != nil {
			s.errorLogger.Log(util.StatusWrapf(err, "failed to look up blockId %d while rolling back a failed eviction plan", a.blockID))
			continue
		}
		if err := s.metadata.MoveBlockMeta(bm, a.oldDir); err != nil {
			s.errorLogger.Log(util.StatusWrapf(err, "failed to roll back metadata for blockId %d after a failed eviction plan", a.blockID))
			continue
		}
		s.notify(Event{Kind: EventMoved, BlockID: a.blockID, Location: a.oldDir.Location()})
	}
}

func (s *TieredBlockStore) admitSpaceLockedWithPinSet(ctx context.Context, location Location, requiredBytes uint64, pinSet map[uint64]struct{}) error {
	view := s.metadata.Snapshot(s.access.OrderedBlockIDs(), pinSet)
	plan := s.evictor.FreeSpaceWithView(requiredBytes, location, view)
	if plan.Empty() {
		if plan == nil {
			return OutOfSpaceError("no eviction plan by evictor to free %d bytes in %s", requiredBytes, location)
		}
		return nil
	}

	var applied []appliedMove
	for _, mv := range plan.ToMove {
		bm, err := s.metadata.GetBlockMeta(mv.BlockID)
		if err != nil {
			continue
		}
		oldDir := bm.Dir
		if err := s.fileOps.Rename(ctx, CommitPath(oldDir, mv.BlockID), CommitPath(mv.TargetDir, mv.BlockID)); err != nil {
			s.undoMoves(ctx, applied)
			return IOError(err, "failed to relocate blockId %d during eviction", mv.BlockID)
		}
		if err := s.metadata.MoveBlockMeta(bm, mv.TargetDir); err != nil {
			s.undoMoves(ctx, applied)
			return err
		}
		applied = append(applied, appliedMove{blockID: mv.BlockID, oldDir: oldDir, newDir: mv.TargetDir})
		s.notify(Event{Kind: EventMoved, BlockID: mv.BlockID, Location: mv.TargetDir.Location()})
	}
	for _, blockID := range plan.ToEvict {
		bm, err := s.metadata.GetBlockMeta(blockID)
		if err != nil {
			continue
		}
		loc := bm.Dir.Location()
		if err := s.fileOps.Delete(ctx, CommitPath(bm.Dir, blockID)); err != nil {
			s.undoMoves(ctx, applied)
			return IOError(err, "failed to evict blockId %d", blockID)
		}
		if err := s.metadata.RemoveBlockMeta(bm); err != nil {
			s.undoMoves(ctx, applied)
			return err
		}
		s.access.Remove(blockID)
		s.notify(Event{Kind: EventRemoved, BlockID: blockID, Location: loc})
	}

	if dir, err := s.metadata.GetEligibleDir(location, requiredBytes); err != nil {
		return err
	} else if dir == nil {
		return OutOfSpaceError("eviction plan executed but %s still lacks %d free bytes", location, requiredBytes)
	}
	return nil
}
