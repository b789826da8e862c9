package blockstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tieredcache/worker/pkg/blockstore"
)

func TestStorageDirCapacityAccounting(t *testing.T) {
	dir := blockstore.NewStorageDir("memory", 0, "/tiers/memory/0", 1024)
	require.Equal(t, uint64(1024), dir.AvailableBytes())

	require.NoError(t, dir.AddTempBlockMeta(&blockstore.TempBlockMeta{BlockID: 1, OwnerSessionID: "s1", Size: 512, Dir: dir}))
	require.Equal(t, uint64(512), dir.AvailableBytes())

	require.Error(t, dir.AddTempBlockMeta(&blockstore.TempBlockMeta{BlockID: 1, OwnerSessionID: "s1", Size: 1, Dir: dir}))

	require.NoError(t, dir.ResizeTempBlockMeta(1, 768))
	require.Equal(t, uint64(256), dir.AvailableBytes())

	require.Error(t, dir.ResizeTempBlockMeta(1, 2048))

	require.NoError(t, dir.RemoveTempBlockMeta(1))
	require.Equal(t, uint64(1024), dir.AvailableBytes())

	require.Error(t, dir.RemoveTempBlockMeta(1))
}

func TestStorageDirCommittedBlocks(t *testing.T) {
	dir := blockstore.NewStorageDir("ssd", 1, "/tiers/ssd/1", 1024)

	require.NoError(t, dir.AddBlockMeta(&blockstore.BlockMeta{BlockID: 7, Size: 1024, Dir: dir}))
	require.Equal(t, uint64(0), dir.AvailableBytes())
	require.True(t, dir.HasBlockMeta(7))

	require.Error(t, dir.AddBlockMeta(&blockstore.BlockMeta{BlockID: 8, Size: 1, Dir: dir}))

	require.NoError(t, dir.RemoveBlockMeta(7))
	require.Equal(t, uint64(1024), dir.AvailableBytes())
	require.False(t, dir.HasBlockMeta(7))
}
