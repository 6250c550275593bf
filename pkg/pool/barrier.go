package pool

import (
	"fmt"

	"github.com/batchshipyard/engine/pkg/types"
)

// ReadyBarrier decides whether pool can transition from preparing to ready.
// The barrier is all nodes idle, all preload images verified present, and
// all shared volumes mounted — unless the pool transfers files onto a
// shared volume at creation time, in which case the image/mount checks are
// skipped: pushing client-local files onto the shared filesystem at
// creation time and gating readiness on a separate preload/mount barrier
// are mutually exclusive for the same pool.
func ReadyBarrier(p *types.Pool, nodes []*types.Node, imagesVerified, mountsVerified bool) (bool, string) {
	for _, n := range nodes {
		if n.State != types.NodeIdle {
			return false, fmt.Sprintf("node %s is %s, not idle", n.ID, n.State)
		}
	}

	if p.TransferFilesOnCreation {
		return true, ""
	}

	if len(p.PreloadImages) > 0 && !imagesVerified {
		return false, "preload images not yet fully replicated"
	}
	if len(p.Mounts) > 0 && !mountsVerified {
		return false, "shared volumes not yet mounted on all nodes"
	}
	return true, ""
}
