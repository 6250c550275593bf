package pool

import (
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
)

// imagesVerified reports whether every image in pool.PreloadImages is fully
// available to nodeIDs. Mirror and direct strategies are considered
// satisfied once the planner has recorded a decision for the image — the
// pull itself is observed through node state, not chunk bookkeeping.
// P2P-strategy images additionally require every node id to appear as a
// chunk holder for every chunk, or be a seed.
func imagesVerified(store storage.Store, poolID string, pool *types.Pool, nodeIDs []string) bool {
	for _, imageID := range pool.PreloadImages {
		st, err := store.GetImageState(poolID, imageID)
		if err != nil {
			return false
		}
		if st.Strategy != "p2p" {
			continue
		}
		if !p2pFullyReplicated(st, nodeIDs) {
			return false
		}
	}
	return true
}

func p2pFullyReplicated(st *storage.ImageState, nodeIDs []string) bool {
	seeds := make(map[string]bool, len(st.SeedSet))
	for _, s := range st.SeedSet {
		seeds[s] = true
	}
	for _, nodeID := range nodeIDs {
		if seeds[nodeID] {
			continue
		}
		for chunk := 0; chunk < st.TotalChunks; chunk++ {
			holders := st.ChunkHolders[chunk]
			if !containsID(holders, nodeID) {
				return false
			}
		}
	}
	return true
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
