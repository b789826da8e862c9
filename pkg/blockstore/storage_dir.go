package blockstore

import (
	"sync"
)

// StorageDir is a single capacity-bounded directory within a tier.
// All mutations are guarded by an internal mutex so that capacity
// accounting is always consistent for any observer.
type StorageDir struct {
	// Path is the filesystem (or object-store prefix) root this dir
	// is rooted at. It is passed to the FileOps implementation
	// wired into the owning BlockMetadataManager.
	Path          string
	TierAlias     string
	Index         int
	CapacityBytes uint64

	mu              sync.Mutex
	availableBytes  uint64
	committedBlocks map[uint64]*BlockMeta
	tempBlocks      map[uint64]*TempBlockMeta
}

// NewStorageDir constructs an empty dir with the given capacity.
func NewStorageDir(tierAlias string, index int, path string, capacityBytes uint64) *StorageDir {
	return &StorageDir{
		Path:            path,
		TierAlias:       tierAlias,
		Index:           index,
		CapacityBytes:   capacityBytes,
		availableBytes:  capacityBytes,
		committedBlocks: map[uint64]*BlockMeta{},
		tempBlocks:      map[uint64]*TempBlockMeta{},
	}
}

// Location returns the dir's own single-dir location.
func (d *StorageDir) Location() Location {
	return SingleDir(d.TierAlias, d.Index)
}

// AvailableBytes returns the number of bytes not yet claimed by any
// committed or temp block.
func (d *StorageDir) AvailableBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.availableBytes
}

// HasBlockMeta reports whether blockID is committed in this dir.
func (d *StorageDir) HasBlockMeta(blockID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.committedBlocks[blockID]
	return ok
}

// HasTempBlockMeta reports whether blockID is a temp block in this
// dir.
func (d *StorageDir) HasTempBlockMeta(blockID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tempBlocks[blockID]
	return ok
}

// GetBlockMeta returns the committed block's metadata.
func (d *StorageDir) GetBlockMeta(blockID uint64) (*BlockMeta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.committedBlocks[blockID]
	if !ok {
		return nil, NotFoundError("no committed blockId %d found in dir %s", blockID, d.Location())
	}
	return m, nil
}

// GetTempBlockMeta returns the temp block's metadata.
func (d *StorageDir) GetTempBlockMeta(blockID uint64) (*TempBlockMeta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.tempBlocks[blockID]
	if !ok {
		return nil, NotFoundError("no temp blockId %d found in dir %s", blockID, d.Location())
	}
	return m, nil
}

// AddBlockMeta inserts a committed block, consuming capacity.
func (d *StorageDir) AddBlockMeta(m *BlockMeta) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.committedBlocks[m.BlockID]; ok {
		return AlreadyExistsError("blockId %d already committed in dir %s", m.BlockID, d.Location())
	}
	if m.Size > d.availableBytes {
		return OutOfSpaceError("dir %s has %d bytes available, need %d", d.Location(), d.availableBytes, m.Size)
	}
	d.availableBytes -= m.Size
	d.committedBlocks[m.BlockID] = m
	return nil
}

// RemoveBlockMeta removes a committed block, restoring capacity.
func (d *StorageDir) RemoveBlockMeta(blockID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.committedBlocks[blockID]
	if !ok {
		return NotFoundError("no committed blockId %d found in dir %s", blockID, d.Location())
	}
	d.availableBytes += m.Size
	delete(d.committedBlocks, blockID)
	return nil
}

// AddTempBlockMeta inserts a temp block, consuming its initial
// reservation.
func (d *StorageDir) AddTempBlockMeta(m *TempBlockMeta) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tempBlocks[m.BlockID]; ok {
		return AlreadyExistsError("blockId %d already has a temp reservation in dir %s", m.BlockID, d.Location())
	}
	if m.Size > d.availableBytes {
		return OutOfSpaceError("dir %s has %d bytes available, need %d", d.Location(), d.availableBytes, m.Size)
	}
	d.availableBytes -= m.Size
	d.tempBlocks[m.BlockID] = m
	return nil
}

// RemoveTempBlockMeta removes a temp block, restoring its current
// reservation.
func (d *StorageDir) RemoveTempBlockMeta(blockID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.tempBlocks[blockID]
	if !ok {
		return NotFoundError("no temp blockId %d found in dir %s", blockID, d.Location())
	}
	d.availableBytes += m.Size
	delete(d.tempBlocks, blockID)
	return nil
}

// ResizeTempBlockMeta grows a temp block's reservation to newSize,
// which must not be smaller than its current size.
func (d *StorageDir) ResizeTempBlockMeta(blockID uint64, newSize uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.tempBlocks[blockID]
	if !ok {
		return NotFoundError("no temp blockId %d found in dir %s", blockID, d.Location())
	}
	if newSize < m.Size {
		return InvalidStateError("temp blockId %d cannot shrink from %d to %d", blockID, m.Size, newSize)
	}
	delta := newSize - m.Size
	if delta > d.availableBytes {
		return OutOfSpaceError("dir %s has %d bytes available, need %d more for blockId %d", d.Location(), d.availableBytes, delta, blockID)
	}
	d.availableBytes -= delta
	m.Size = newSize
	return nil
}

// ListCommittedBlocks returns a snapshot of all committed blocks.
func (d *StorageDir) ListCommittedBlocks() []*BlockMeta {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*BlockMeta, 0, len(d.committedBlocks))
	for _, m := range d.committedBlocks {
		out = append(out, m)
	}
	return out
}

// ListTempBlocks returns a snapshot of all temp blocks owned by
// sessionID, or all of them when sessionID is empty.
func (d *StorageDir) ListTempBlocks(sessionID string) []*TempBlockMeta {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*TempBlockMeta, 0)
	for _, m := range d.tempBlocks {
		if sessionID == "" || m.OwnerSessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}
