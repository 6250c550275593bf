package datamove

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
)

// Planner resolves InputData/OutputData clauses against object storage,
// applying the three ingress caching scopes of §4.H.
type Planner struct {
	store  storage.Store
	object capability.ObjectStore
}

// NewPlanner builds a Planner.
func NewPlanner(store storage.Store, object capability.ObjectStore) *Planner {
	return &Planner{store: store, object: object}
}

// EnsurePoolIngress performs pool-scope ingress for marker, idempotently:
// it no-ops if the node has already materialised this marker (§4.H
// "each node performs the download idempotently against a local marker
// file").
func (p *Planner) EnsurePoolIngress(ctx context.Context, deadline time.Time, poolID, marker string, units []types.InputData, download func(*types.InputData) error) error {
	has, err := p.store.HasIngressMarker(poolID, marker)
	if err != nil {
		return fmt.Errorf("checking pool ingress marker: %w", err)
	}
	if has {
		return nil
	}
	for i := range units {
		if err := p.fetchUnit(ctx, deadline, &units[i], download); err != nil {
			return err
		}
	}
	return p.store.SetIngressMarker(poolID, marker)
}

// EnsureJobIngress performs job-scope ingress for (jobID, nodeID), skipping
// if this node has already materialised the job's input set for an earlier
// task of the same job (§4.H "de-duplicated per (job_id, node_id) pair").
func (p *Planner) EnsureJobIngress(ctx context.Context, deadline time.Time, jobID, nodeID string, units []types.InputData, download func(*types.InputData) error) error {
	has, err := p.store.HasJobIngressMarker(jobID, nodeID)
	if err != nil {
		return fmt.Errorf("checking job ingress marker: %w", err)
	}
	if has {
		return nil
	}
	for i := range units {
		if err := p.fetchUnit(ctx, deadline, &units[i], download); err != nil {
			return err
		}
	}
	return p.store.SetJobIngressMarker(jobID, nodeID)
}

// RunTaskIngress performs task-scope ingress, which fires before every
// task instance with no dedup; for multi-instance tasks the caller must
// only invoke this for the application-task node (§4.H).
func (p *Planner) RunTaskIngress(ctx context.Context, deadline time.Time, units []types.InputData, download func(*types.InputData) error) error {
	for i := range units {
		if err := p.fetchUnit(ctx, deadline, &units[i], download); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) fetchUnit(ctx context.Context, deadline time.Time, u *types.InputData, download func(*types.InputData) error) error {
	if download != nil {
		return download(u)
	}
	if u.PriorTaskID != "" {
		return nil // prior-task output source is resolved by the caller, which knows the task's output location
	}
	paths, err := p.object.List(ctx, deadline, u.SourcePath, u.Include, u.Exclude)
	if err != nil {
		return fmt.Errorf("listing ingress source %s: %w", u.SourcePath, err)
	}
	for _, src := range paths {
		data, err := p.object.Get(ctx, deadline, src)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", src, err)
		}
		dst := path.Join(u.Destination, path.Base(src))
		if err := writeLocal(dst, data); err != nil {
			return err
		}
	}
	return nil
}
