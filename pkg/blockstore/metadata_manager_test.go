package blockstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tieredcache/worker/pkg/blockstore"
	"github.com/tieredcache/worker/pkg/util"
)

func TestScanStartupReturnsDiscoveredBlockIDsAscending(t *testing.T) {
	tiers := blockstore.BuildTiers([]blockstore.TierLayout{
		{Alias: "memory", Dirs: []blockstore.DirLayout{
			{Path: "/tiers/memory/0", CapacityBytes: 1024},
		}},
	})
	metadata := blockstore.NewBlockMetadataManager(tiers)
	fileOps := newFakeFileOps()
	fileOps.files["/tiers/memory/0/30"] = make([]byte, 100)
	fileOps.files["/tiers/memory/0/5"] = make([]byte, 50)
	fileOps.files["/tiers/memory/0/17"] = make([]byte, 25)

	discovered, err := metadata.ScanStartup(context.Background(), fileOps, 4, util.DefaultErrorLogger)
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 17, 30}, discovered)

	require.True(t, metadata.HasBlockMeta(5))
	meta, err := metadata.GetBlockMeta(30)
	require.NoError(t, err)
	require.Equal(t, uint64(100), meta.Size)
}

// TestDiscoveredBlocksAreEvictionCandidates pins down the bug this
// test was added to catch: blocks found by a startup scan must be
// seeded into the store's LRU access set so a later admission can
// move or evict them, not just blocks committed after the process
// started.
func TestDiscoveredBlocksAreEvictionCandidates(t *testing.T) {
	tiers := blockstore.BuildTiers([]blockstore.TierLayout{
		{Alias: "memory", Dirs: []blockstore.DirLayout{
			{Path: "/tiers/memory/0", CapacityBytes: 1024},
		}},
		{Alias: "ssd", Dirs: []blockstore.DirLayout{
			{Path: "/tiers/ssd/0", CapacityBytes: 1024},
		}},
	})
	metadata := blockstore.NewBlockMetadataManager(tiers)
	fileOps := newFakeFileOps()
	fileOps.files["/tiers/memory/0/1"] = make([]byte, 512)
	fileOps.files["/tiers/memory/0/2"] = make([]byte, 512)
	// "memory"/0 is now full purely from pre-existing, scan-discovered blocks.

	discovered, err := metadata.ScanStartup(context.Background(), fileOps, 4, util.DefaultErrorLogger)
	require.NoError(t, err)

	locks := blockstore.NewLockManager()
	evictor := blockstore.NewLRUEvictor(t.Name())
	store := blockstore.NewTieredBlockStore(metadata, locks, evictor, fileOps, discovered, util.DefaultErrorLogger)

	ctx := context.Background()
	tb, err := store.CreateBlockMeta(ctx, "session-a", 3, blockstore.SingleDir("memory", 0), 512)
	require.NoError(t, err)

	// Block 1 was the least recently used of the pre-existing blocks;
	// it should have been relocated to "ssd" to make room.
	meta, err := store.GetBlockMeta(1)
	require.NoError(t, err)
	require.Equal(t, "ssd", meta.Dir.TierAlias)
	require.Equal(t, blockstore.SingleDir("memory", 0), tb.Dir.Location())
}
