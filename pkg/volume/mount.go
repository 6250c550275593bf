package volume

import (
	"fmt"

	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
)

// markerPrefix namespaces mount-readiness markers within a pool's ingress
// marker set so they can't collide with data-ingress markers sharing the
// same storage.Store bucket.
const markerPrefix = "mount:"

// RemoteMountChecker answers the pool ready barrier's "all shared volumes
// mounted" condition (§3 "preparing → ready requires ... all shared
// volumes mounted") by consulting per-node markers in storage.Store rather
// than touching any node's filesystem directly, since the compute
// platform is an abstract external collaborator with no generic "run a
// command on this node" primitive. A node is considered to have a given
// shared_data_volume mounted once something (the node's own startup
// sequence, a node-enrollment step) has called MarkMounted for it; until
// then the checker conservatively reports not-ready.
type RemoteMountChecker struct {
	store storage.Store
}

// NewRemoteMountChecker builds a checker backed by store.
func NewRemoteMountChecker(store storage.Store) *RemoteMountChecker {
	return &RemoteMountChecker{store: store}
}

// Check has the pool.MountChecker shape: it is ready only once every
// shared_data_volume mount configured on poolID is marked mounted for
// every node in nodeIDs. data_volume (host bind) mounts are node-local by
// definition and never block the barrier. An unknown pool conservatively
// reports not-ready rather than erroring, since MountChecker has no error
// return.
func (c *RemoteMountChecker) Check(poolID string, nodeIDs []string) bool {
	p, err := c.store.GetPool(poolID)
	if err != nil {
		return false
	}

	shared := sharedVolumes(p.Mounts)
	if len(shared) == 0 {
		return true
	}

	for _, nodeID := range nodeIDs {
		for _, v := range shared {
			marker := mountMarker(v.Alias, nodeID)
			has, err := c.store.HasIngressMarker(poolID, marker)
			if err != nil || !has {
				return false
			}
		}
	}
	return true
}

// MarkMounted records that nodeID has completed mounting v within poolID,
// called once a node confirms its shared volumes are attached.
func (c *RemoteMountChecker) MarkMounted(poolID, nodeID string, v *types.VolumeMount) error {
	return c.store.SetIngressMarker(poolID, mountMarker(v.Alias, nodeID))
}

func sharedVolumes(mounts []*types.VolumeMount) []*types.VolumeMount {
	var shared []*types.VolumeMount
	for _, m := range mounts {
		if m.Kind == types.VolumeSharedDataVolume {
			shared = append(shared, m)
		}
	}
	return shared
}

func mountMarker(alias, nodeID string) string {
	return fmt.Sprintf("%s%s:%s", markerPrefix, alias, nodeID)
}
