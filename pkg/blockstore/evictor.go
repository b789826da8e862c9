package blockstore

// EvictionPlan describes the work needed to leave at least bytesToFree
// available in one dir of a location: blocks to move to a lower tier,
// and blocks to evict outright. Neither list may reference a pinned
// blockId.
type EvictionPlan struct {
	ToMove  []PlannedMove
	ToEvict []uint64
}

// PlannedMove names a block and the dir it should be relocated to.
type PlannedMove struct {
	BlockID   uint64
	TargetDir *StorageDir
}

// Empty reports whether the plan requires no work, i.e. space is
// already available.
func (p *EvictionPlan) Empty() bool {
	return p == nil || (len(p.ToMove) == 0 && len(p.ToEvict) == 0)
}

// DirSnapshot is an immutable view of one dir's occupancy, as seen by
// an Evictor.
type DirSnapshot struct {
	Dir            *StorageDir
	AvailableBytes uint64
	CapacityBytes  uint64
	BlockSizes     map[uint64]uint64
}

// MetadataView is an immutable snapshot of the whole store's
// occupancy, handed to an Evictor alongside a pin set. Evictors must
// treat it as read-only and must not perform I/O.
type MetadataView struct {
	Tiers  []*StorageTier
	Dirs   map[string][]DirSnapshot // keyed by tier alias
	PinSet map[uint64]struct{}
	Order  []uint64 // block IDs in least-recently-used-first order
}

// Pinned reports whether blockID must not be touched by a plan.
func (v *MetadataView) Pinned(blockID uint64) bool {
	_, ok := v.PinSet[blockID]
	return ok
}

// Evictor computes eviction plans. Implementations must be pure
// functions of their inputs: no I/O, no blocking, no mutation of the
// view. This lets the façade invoke them while holding only the
// metadata lock.
type Evictor interface {
	// FreeSpaceWithView returns a plan after which some dir within
	// location has at least bytesToFree bytes available, or nil if no
	// such plan exists.
	FreeSpaceWithView(bytesToFree uint64, location Location, view *MetadataView) *EvictionPlan
}
