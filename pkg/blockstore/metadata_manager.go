package blockstore

import (
	"context"
	"sort"
	"sync"

	"github.com/tieredcache/worker/pkg/util"
)

// BlockMetadataManager is the global index of committed and temp
// blocks across every tier and dir. It does not itself serialize
// access: callers (the TieredBlockStore façade) hold the appropriate
// external lock (metadataLock) around any sequence of calls that must
// appear atomic.
type BlockMetadataManager struct {
	tiers []*StorageTier

	mu        sync.Mutex
	committed map[uint64]*StorageDir
	temp      map[uint64]*StorageDir
}

// NewBlockMetadataManager constructs a manager over an already-built
// tier list, ordered fastest tier first.
func NewBlockMetadataManager(tiers []*StorageTier) *BlockMetadataManager {
	return &BlockMetadataManager{
		tiers:     tiers,
		committed: map[uint64]*StorageDir{},
		temp:      map[uint64]*StorageDir{},
	}
}

// Tiers returns the ordered tier list.
func (m *BlockMetadataManager) Tiers() []*StorageTier {
	return m.tiers
}

// TierByAlias finds a tier by its alias.
func (m *BlockMetadataManager) TierByAlias(alias string) (*StorageTier, error) {
	for _, t := range m.tiers {
		if t.Alias == alias {
			return t, nil
		}
	}
	return nil, NotFoundError("no tier with alias %q found", alias)
}

// HasBlockMeta reports whether blockID is committed anywhere.
func (m *BlockMetadataManager) HasBlockMeta(blockID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.committed[blockID]
	return ok
}

// HasTempBlockMeta reports whether blockID has a live temp
// reservation anywhere.
func (m *BlockMetadataManager) HasTempBlockMeta(blockID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.temp[blockID]
	return ok
}

// GetBlockMeta looks up a committed block's metadata.
func (m *BlockMetadataManager) GetBlockMeta(blockID uint64) (*BlockMeta, error) {
	m.mu.Lock()
	dir, ok := m.committed[blockID]
	m.mu.Unlock()
	if !ok {
		return nil, NotFoundError("no blockId %d found", blockID)
	}
	return dir.GetBlockMeta(blockID)
}

// GetTempBlockMeta looks up a temp block's metadata.
func (m *BlockMetadataManager) GetTempBlockMeta(blockID uint64) (*TempBlockMeta, error) {
	m.mu.Lock()
	dir, ok := m.temp[blockID]
	m.mu.Unlock()
	if !ok {
		return nil, NotFoundError("no temp blockId %d found", blockID)
	}
	return dir.GetTempBlockMeta(blockID)
}

// CreateTempBlockMeta inserts a new temp block in dir.
func (m *BlockMetadataManager) CreateTempBlockMeta(dir *StorageDir, blockID uint64, sessionID string, initialSize uint64) (*TempBlockMeta, error) {
	m.mu.Lock()
	if _, ok := m.committed[blockID]; ok {
		m.mu.Unlock()
		return nil, AlreadyExistsError("blockId %d already committed", blockID)
	}
	if _, ok := m.temp[blockID]; ok {
		m.mu.Unlock()
		return nil, AlreadyExistsError("blockId %d already has a temp reservation", blockID)
	}
	m.mu.Unlock()

	tb := &TempBlockMeta{BlockID: blockID, OwnerSessionID: sessionID, Size: initialSize, Dir: dir}
	if err := dir.AddTempBlockMeta(tb); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.temp[blockID] = dir
	m.mu.Unlock()
	return tb, nil
}

// ResizeTempBlockMeta grows an existing temp block's reservation.
func (m *BlockMetadataManager) ResizeTempBlockMeta(blockID uint64, newSize uint64) error {
	tb, err := m.GetTempBlockMeta(blockID)
	if err != nil {
		return err
	}
	return tb.Dir.ResizeTempBlockMeta(blockID, newSize)
}

// CommitTempBlock transitions a temp block to committed, in place
// (same dir), at its current size.
func (m *BlockMetadataManager) CommitTempBlock(tb *TempBlockMeta) (*BlockMeta, error) {
	m.mu.Lock()
	if _, ok := m.committed[tb.BlockID]; ok {
		m.mu.Unlock()
		return nil, AlreadyExistsError("blockId %d already committed", tb.BlockID)
	}
	m.mu.Unlock()

	bm := &BlockMeta{BlockID: tb.BlockID, Size: tb.Size, Dir: tb.Dir}
	if err := tb.Dir.RemoveTempBlockMeta(tb.BlockID); err != nil {
		return nil, err
	}
	if err := tb.Dir.AddBlockMeta(bm); err != nil {
		_ = tb.Dir.AddTempBlockMeta(tb)
		return nil, err
	}
	m.mu.Lock()
	delete(m.temp, tb.BlockID)
	m.committed[tb.BlockID] = tb.Dir
	m.mu.Unlock()
	return bm, nil
}

// AbortTempBlock discards a temp block's reservation.
func (m *BlockMetadataManager) AbortTempBlock(tb *TempBlockMeta) error {
	if err := tb.Dir.RemoveTempBlockMeta(tb.BlockID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.temp, tb.BlockID)
	m.mu.Unlock()
	return nil
}

// MoveBlockMeta relocates a committed block from its current dir to
// newDir.
func (m *BlockMetadataManager) MoveBlockMeta(bm *BlockMeta, newDir *StorageDir) error {
	moved := &BlockMeta{BlockID: bm.BlockID, Size: bm.Size, Dir: newDir}
	if err := newDir.AddBlockMeta(moved); err != nil {
		return err
	}
	if err := bm.Dir.RemoveBlockMeta(bm.BlockID); err != nil {
		_ = newDir.RemoveBlockMeta(bm.BlockID)
		return err
	}
	m.mu.Lock()
	m.committed[bm.BlockID] = newDir
	m.mu.Unlock()
	bm.Dir = newDir
	return nil
}

// RemoveBlockMeta deletes a committed block's metadata entirely.
func (m *BlockMetadataManager) RemoveBlockMeta(bm *BlockMeta) error {
	if err := bm.Dir.RemoveBlockMeta(bm.BlockID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.committed, bm.BlockID)
	m.mu.Unlock()
	return nil
}

// GetAvailableBytes sums available capacity across every dir
// contained in location.
func (m *BlockMetadataManager) GetAvailableBytes(location Location) (uint64, error) {
	tier, err := m.TierByAlias(location.TierAlias)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, d := range tier.Dirs {
		if location.DirIndex == ANYDir || d.Index == location.DirIndex {
			total += d.AvailableBytes()
		}
	}
	return total, nil
}

// GetEligibleDir returns a dir within location that can currently
// accommodate bytes, or nil if none can.
func (m *BlockMetadataManager) GetEligibleDir(location Location, bytes uint64) (*StorageDir, error) {
	tier, err := m.TierByAlias(location.TierAlias)
	if err != nil {
		return nil, err
	}
	for _, d := range tier.Dirs {
		if location.DirIndex == ANYDir || d.Index == location.DirIndex {
			if d.AvailableBytes() >= bytes {
				return d, nil
			}
		}
	}
	return nil, nil
}

// StoreMeta is a snapshot of per-dir occupancy returned by
// GetBlockStoreMeta.
type StoreMeta struct {
	Tiers []TierMeta
}

// TierMeta is a snapshot of one tier's dirs.
type TierMeta struct {
	Alias string
	Dirs  []DirMeta
}

// DirMeta is a snapshot of one dir's occupancy.
type DirMeta struct {
	Index           int
	CapacityBytes   uint64
	AvailableBytes  uint64
	CommittedBlocks int
	TempBlocks      int
}

// GetBlockStoreMeta returns a snapshot suitable for exposing upward
// (diagnostics, monitoring).
func (m *BlockMetadataManager) GetBlockStoreMeta() *StoreMeta {
	out := &StoreMeta{}
	for _, t := range m.tiers {
		tm := TierMeta{Alias: t.Alias}
		for _, d := range t.Dirs {
			tm.Dirs = append(tm.Dirs, DirMeta{
				Index:           d.Index,
				CapacityBytes:   d.CapacityBytes,
				AvailableBytes:  d.AvailableBytes(),
				CommittedBlocks: len(d.ListCommittedBlocks()),
				TempBlocks:      len(d.ListTempBlocks("")),
			})
		}
		out.Tiers = append(out.Tiers, tm)
	}
	return out
}

// Snapshot builds the read-only MetadataView an Evictor consumes,
// using accessOrder (oldest first) for the LRU ordering and pinSet to
// exclude locked blocks.
func (m *BlockMetadataManager) Snapshot(accessOrder []uint64, pinSet map[uint64]struct{}) *MetadataView {
	view := &MetadataView{
		Tiers:  m.tiers,
		Dirs:   map[string][]DirSnapshot{},
		PinSet: pinSet,
		Order:  accessOrder,
	}
	for _, t := range m.tiers {
		for _, d := range t.Dirs {
			sizes := map[uint64]uint64{}
			for _, bm := range d.ListCommittedBlocks() {
				sizes[bm.BlockID] = bm.Size
			}
			view.Dirs[t.Alias] = append(view.Dirs[t.Alias], DirSnapshot{
				Dir:            d,
				AvailableBytes: d.AvailableBytes(),
				CapacityBytes:  d.CapacityBytes,
				BlockSizes:     sizes,
			})
		}
	}
	return view
}

// ScanStartup walks every dir's committed path via fileOps, seeding a
// BlockMeta for each file found, and deletes any leftover temp paths
// left behind by a prior process. Directory scans for different dirs
// run concurrently, bounded by a weighted semaphore, following the
// same pattern used elsewhere in this codebase for bounding
// concurrent blocking work. It returns every discovered blockId in
// ascending order, so callers can seed a fresh LRU access set with
// the blocks that already existed before this process started —
// without it, a restarted worker's pre-existing blocks would never
// become eviction candidates.
func (m *BlockMetadataManager) ScanStartup(ctx context.Context, fileOps FileOps, maxConcurrency int64, errorLogger util.ErrorLogger) ([]uint64, error) {
	type job struct {
		tierAlias string
		dir       *StorageDir
	}
	var jobs []job
	for _, t := range m.tiers {
		for _, d := range t.Dirs {
			jobs = append(jobs, job{tierAlias: t.Alias, dir: d})
		}
	}

	type result struct {
		ids []uint64
		err error
	}
	results := make(chan result, len(jobs))
	sem := newBoundedRunner(maxConcurrency)
	for _, j := range jobs {
		j := j
		sem.Go(ctx, func() {
			ids, err := m.scanDir(ctx, fileOps, j.dir, errorLogger)
			results <- result{ids: ids, err: err}
		})
	}
	var firstErr error
	var discovered []uint64
	for range jobs {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		discovered = append(discovered, r.ids...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(discovered, func(i, j int) bool { return discovered[i] < discovered[j] })
	return discovered, nil
}

func (m *BlockMetadataManager) scanDir(ctx context.Context, fileOps FileOps, dir *StorageDir, errorLogger util.ErrorLogger) ([]uint64, error) {
	names, err := fileOps.ListDir(ctx, dir.Path)
	if err != nil {
		return nil, IOError(err, "failed to list dir %s", dir.Location())
	}
	var discovered []uint64
	for _, name := range names {
		if name == "tmp" {
			continue
		}
		blockID, ok := parseBlockID(name)
		if !ok {
			continue
		}
		size, err := fileOps.Size(ctx, CommitPath(dir, blockID))
		if err != nil {
			return nil, IOError(err, "failed to stat blockId %d in dir %s", blockID, dir.Location())
		}
		bm := &BlockMeta{BlockID: blockID, Size: size, Dir: dir}
		if err := dir.AddBlockMeta(bm); err != nil {
			errorLogger.Log(util.StatusWrapf(err, "failed to register blockId %d discovered during startup scan", blockID))
			continue
		}
		m.mu.Lock()
		m.committed[blockID] = dir
		m.mu.Unlock()
		discovered = append(discovered, blockID)
	}

	tmpRoot := dir.Path + "/tmp"
	sessionDirs, err := fileOps.ListDir(ctx, tmpRoot)
	if err == nil {
		for _, sessionID := range sessionDirs {
			leftovers, err := fileOps.ListDir(ctx, tmpRoot+"/"+sessionID)
			if err != nil {
				continue
			}
			for _, name := range leftovers {
				if _, ok := parseBlockID(name); ok {
					_ = fileOps.Delete(ctx, tmpRoot+"/"+sessionID+"/"+name)
				}
			}
		}
	}
	return discovered, nil
}

func parseBlockID(name string) (uint64, bool) {
	if name == "" {
		return 0, false
	}
	var v uint64
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}
