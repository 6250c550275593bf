package federation

import (
	"context"

	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
)

// SKUSpec is the per-core/memory shape of a VM size, supplied by config
// since the engine has no cloud SDK binding to look this up itself
// (spec.md §1 Non-goals).
type SKUSpec struct {
	Cores       float64
	MemoryBytes int64
}

// SKUCatalog maps a pool's VMSize to its resource shape.
type SKUCatalog map[string]SKUSpec

// CandidatesFromStore builds a CandidateSource over every pool owned by
// this federation, snapshotting node/task counts from storage. The
// returned candidates carry no LastLocationForJob — that's job-scoped, and
// the proxy stamps it in per action via StampPriorLocation before ranking.
func CandidatesFromStore(store storage.Store, federationID string, catalog SKUCatalog) CandidateSource {
	return func(ctx context.Context) ([]*types.PoolMatchState, error) {
		fed, err := store.GetFederation(federationID)
		if err != nil {
			return nil, err
		}

		out := make([]*types.PoolMatchState, 0, len(fed.Members))
		for _, member := range fed.Members {
			pool, err := store.GetPool(member.PoolID)
			if err != nil {
				continue
			}
			if pool.State != types.PoolReady && pool.State != types.PoolResizing {
				continue
			}
			nodes, err := store.ListNodesByPool(member.PoolID)
			if err != nil {
				continue
			}
			state := poolMatchStateFor(pool, nodes, catalog)
			out = append(out, state)
		}
		return out, nil
	}
}

// StampPriorLocation fills LastLocationForJob on every candidate with the
// location of wherever jobID most recently landed, per §4.J's "location
// equal to any co-scheduled task group's prior location for the same job".
func StampPriorLocation(store storage.Store, federationID, jobID string, candidates []*types.PoolMatchState) {
	loc, err := store.GetJobLocation(federationID, jobID)
	if err != nil {
		return
	}
	priorPool, err := store.GetPool(loc)
	if err != nil {
		return
	}
	for _, c := range candidates {
		c.LastLocationForJob = priorPool.Location
	}
}

func poolMatchStateFor(pool *types.Pool, nodes []*types.Node, catalog SKUCatalog) *types.PoolMatchState {
	var idle, running, active int
	for _, n := range nodes {
		switch n.State {
		case types.NodeIdle:
			idle++
		case types.NodeRunning:
			running++
			active++
		}
	}

	sku := catalog[pool.VMSize]
	nodeCount := float64(len(nodes))

	steady := len(nodes) == pool.TargetDedicated+pool.TargetPreemptible

	return &types.PoolMatchState{
		Pool:            pool,
		IdleNodes:       idle,
		RunningNodes:    running,
		ActiveTasks:     active,
		Autoscale:       pool.AutoscaleEnabled,
		AutoscaleSteady: steady,
		Cores:           sku.Cores * nodeCount,
		MemoryBytes:     int64(float64(sku.MemoryBytes) * nodeCount),
		RemainingQuota:  (pool.TargetDedicated + pool.TargetPreemptible) - len(nodes),
	}
}
