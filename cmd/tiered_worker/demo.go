package main

import (
	"context"
	"log"

	"github.com/tieredcache/worker/pkg/blockstore"
	"github.com/tieredcache/worker/pkg/util"
)

// runDemoClient exercises the store's create/write/commit/remove
// lifecycle once against the first configured tier, using generateUUID
// to mint its session identifier the way a real caller scoping its own
// block operations would. generateUUID is taken as a util.UUIDGenerator
// so a test can supply a deterministic one instead of a real random
// source. It logs its outcome and returns, rather than looping, since
// there is no other traffic generator to demonstrate it against in
// this binary.
func runDemoClient(ctx context.Context, store *blockstore.TieredBlockStore, tierAlias string, generateUUID util.UUIDGenerator) error {
	sessionID, err := generateUUID()
	if err != nil {
		return err
	}
	session := sessionID.String()

	const demoBlockID = 1
	const demoPayload = "tiered block store demo payload"
	loc := blockstore.AnyDirIn(tierAlias)

	if _, err := store.CreateBlockMeta(ctx, session, demoBlockID, loc, uint64(len(demoPayload))); err != nil {
		return err
	}
	w, err := store.GetBlockWriter(ctx, session, demoBlockID)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(demoPayload)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := store.CommitBlock(ctx, session, demoBlockID); err != nil {
		return err
	}

	meta, err := store.GetBlockMeta(demoBlockID)
	if err != nil {
		return err
	}
	log.Printf("demo session %s committed block %d (%d bytes) to %s", session, demoBlockID, meta.Size, meta.Dir.Location())

	if err := store.RemoveBlock(ctx, session, demoBlockID); err != nil {
		return err
	}
	log.Printf("demo session %s removed block %d", session, demoBlockID)
	return nil
}
