package pool

import (
	"sort"

	"github.com/batchshipyard/engine/pkg/types"
)

// SelectNodesForRemoval picks count nodes to remove on scale-down, breaking
// ties by highest node id first (§4.I "resize-down... highest-node-id-first
// tie-break"). A node already running a task is preferred for retention
// over an idle one only under the taskcompletion policy, handled by the
// caller; this function only orders candidates.
func SelectNodesForRemoval(nodes []*types.Node, count int) []*types.Node {
	sorted := make([]*types.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })
	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// RemovalAction is what the controller should do with one node selected for
// scale-down, depending on the pool's resize-down policy.
type RemovalAction string

const (
	// ActionWait defers removal: the node is busy and the policy requires
	// it to drain before going away.
	ActionWait RemovalAction = "wait"
	// ActionRequeue terminates the node's running tasks so they requeue
	// elsewhere, then removes the node.
	ActionRequeue RemovalAction = "requeue"
	// ActionTerminateNow removes the node immediately regardless of what
	// it is running.
	ActionTerminateNow RemovalAction = "terminate_now"
	// ActionRetainData removes the node's compute but preserves any
	// retained-data volume bound to it.
	ActionRetainData RemovalAction = "retain_data"
)

// DecideRemoval returns what a controller should do with node under policy.
func DecideRemoval(policy types.ResizeDownPolicy, node *types.Node) RemovalAction {
	busy := node.State == types.NodeRunning

	switch policy {
	case types.ResizeDownTaskCompletion:
		if busy {
			return ActionWait
		}
		return ActionTerminateNow
	case types.ResizeDownRequeue:
		return ActionRequeue
	case types.ResizeDownRetainedData:
		return ActionRetainData
	case types.ResizeDownTerminate:
		return ActionTerminateNow
	default:
		return ActionTerminateNow
	}
}
