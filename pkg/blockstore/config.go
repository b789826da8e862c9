package blockstore

// DirLayout describes one configured dir before it is bound to a
// concrete FileOps: where it lives, and how much capacity it offers.
type DirLayout struct {
	Path          string
	CapacityBytes uint64
}

// TierLayout describes one configured tier: its alias and its dirs,
// in the preference order new blocks should try them.
type TierLayout struct {
	Alias string
	Dirs  []DirLayout
}

// BuildTiers materializes a tier list from layout descriptions. Tiers
// are kept in the order given, which callers are expected to order
// fastest-first, per the store's "tier above is faster" invariant.
func BuildTiers(layouts []TierLayout) []*StorageTier {
	tiers := make([]*StorageTier, 0, len(layouts))
	for _, tl := range layouts {
		dirs := make([]*StorageDir, 0, len(tl.Dirs))
		for i, dl := range tl.Dirs {
			dirs = append(dirs, NewStorageDir(tl.Alias, i, dl.Path, dl.CapacityBytes))
		}
		tiers = append(tiers, NewStorageTier(tl.Alias, dirs))
	}
	return tiers
}
