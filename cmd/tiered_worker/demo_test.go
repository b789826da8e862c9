package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tieredcache/worker/pkg/blockstore"
	"github.com/tieredcache/worker/pkg/fileops"
	"github.com/tieredcache/worker/pkg/util"
)

// fixedUUID returns a util.UUIDGenerator that always yields the same
// value, so the demo client's session scoping can be asserted on
// without depending on real randomness.
func fixedUUID(id uuid.UUID) util.UUIDGenerator {
	return func() (uuid.UUID, error) {
		return id, nil
	}
}

func newDemoTestStore(t *testing.T) *blockstore.TieredBlockStore {
	t.Helper()
	tiers := blockstore.BuildTiers([]blockstore.TierLayout{
		{Alias: "memory", Dirs: []blockstore.DirLayout{
			{Path: filepath.Join(t.TempDir(), "memory0"), CapacityBytes: 1024},
		}},
	})
	metadata := blockstore.NewBlockMetadataManager(tiers)
	locks := blockstore.NewLockManager()
	evictor := blockstore.NewLRUEvictor(t.Name())
	return blockstore.NewTieredBlockStore(metadata, locks, evictor, fileops.NewLocal(), nil, util.DefaultErrorLogger)
}

func TestRunDemoClientCommitsAndRemovesABlock(t *testing.T) {
	store := newDemoTestStore(t)
	generateUUID := fixedUUID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))

	require.NoError(t, runDemoClient(context.Background(), store, "memory", generateUUID))

	// The demo client removes its block once it has finished
	// demonstrating the lifecycle, so nothing should remain.
	require.False(t, store.HasBlockMeta(1))
}

func TestRunDemoClientPropagatesGeneratorFailure(t *testing.T) {
	store := newDemoTestStore(t)
	wantErr := errors.New("no entropy available")
	failingGenerator := func() (uuid.UUID, error) {
		return uuid.UUID{}, wantErr
	}

	err := runDemoClient(context.Background(), store, "memory", failingGenerator)
	require.ErrorIs(t, err, wantErr)
}
