package blockstore

// BlockMeta is the identity of a committed block: its size and the
// dir that holds it.
type BlockMeta struct {
	BlockID uint64
	Size    uint64
	Dir     *StorageDir
}

// TempBlockMeta is the identity of an uncommitted block still owned
// by the session that created it.
type TempBlockMeta struct {
	BlockID        uint64
	OwnerSessionID string
	Size           uint64
	Dir            *StorageDir
}
