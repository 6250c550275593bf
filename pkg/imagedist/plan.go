package imagedist

import (
	"sort"

	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
)

// Strategy is the per-image distribution decision of §4.D.
type Strategy string

const (
	StrategyMirror Strategy = "mirror"
	StrategyP2P    Strategy = "p2p"
	StrategyDirect Strategy = "direct"
)

// ImagePlan is the planner's decision for one preload image across a pool.
type ImagePlan struct {
	ImageID                   string
	Strategy                  Strategy
	Seeds                     []string // node ids pulling from origin; empty unless StrategyP2P
	ConcurrentSourceDownloads int
	CompressionEnabled        bool
}

// Plan decides a strategy for every image in pool.PreloadImages, given the
// pool's current node ids. Seed nodes are the lowest-sorted S node ids,
// where S = DirectDownloadSeedBias, for a deterministic, reproducible
// assignment across planner re-runs (§4.D).
func Plan(pool *types.Pool, nodeIDs []string) []*ImagePlan {
	sorted := append([]string(nil), nodeIDs...)
	sort.Strings(sorted)

	plans := make([]*ImagePlan, 0, len(pool.PreloadImages))
	for _, imageID := range pool.PreloadImages {
		plans = append(plans, planOne(pool, imageID, sorted))
	}
	return plans
}

func planOne(pool *types.Pool, imageID string, sortedNodeIDs []string) *ImagePlan {
	policy := pool.DataReplication

	if !policy.PeerToPeerEnabled && pool.ContainerRegistries.PrivateMirror != "" {
		return &ImagePlan{ImageID: imageID, Strategy: StrategyMirror}
	}

	if policy.PeerToPeerEnabled {
		s := policy.DirectDownloadSeedBias
		if s > len(sortedNodeIDs) {
			s = len(sortedNodeIDs)
		}
		if s < 1 && len(sortedNodeIDs) > 0 {
			s = 1 // at least one seed is required to bootstrap the swarm
		}
		return &ImagePlan{
			ImageID:                   imageID,
			Strategy:                  StrategyP2P,
			Seeds:                     append([]string(nil), sortedNodeIDs[:s]...),
			ConcurrentSourceDownloads: policy.ConcurrentSourceDownloads,
			CompressionEnabled:        policy.CompressionEnabled,
		}
	}

	return &ImagePlan{ImageID: imageID, Strategy: StrategyDirect}
}

// Degrade records that imageID's seed(s) failed and the image now falls
// back to direct-pull for every remaining follower node of poolID, without
// aborting the pool (§4.D "any seed failure degrades that image to
// direct-pull for its followers").
func Degrade(store storage.Store, poolID, imageID string) error {
	st, err := store.GetImageState(poolID, imageID)
	if err == storage.ErrNotFound {
		st = &storage.ImageState{ImageID: imageID}
	} else if err != nil {
		return err
	}
	st.Strategy = string(StrategyDirect)
	st.SeedSet = nil
	return store.PutImageState(poolID, st)
}
