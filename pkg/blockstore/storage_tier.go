package blockstore

// StorageTier is an ordered collection of dirs at a single tier
// level. Tiers are ordered fastest-first; index 0 is the tier
// preferred for new blocks.
type StorageTier struct {
	Alias string
	Dirs  []*StorageDir
}

// NewStorageTier constructs a tier from an already-built list of dirs.
func NewStorageTier(alias string, dirs []*StorageDir) *StorageTier {
	return &StorageTier{Alias: alias, Dirs: dirs}
}

// Dir returns the dir at index, or an error if out of range.
func (t *StorageTier) Dir(index int) (*StorageDir, error) {
	if index < 0 || index >= len(t.Dirs) {
		return nil, NotFoundError("tier %s has no dir at index %d", t.Alias, index)
	}
	return t.Dirs[index], nil
}
