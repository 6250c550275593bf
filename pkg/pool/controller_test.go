package pool

import (
	"context"
	"testing"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/events"
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func anHourFromNow() time.Time { return time.Now().Add(time.Hour) }

func newTrackedPool(t *testing.T, store storage.Store, platform *capability.FakePlatform, p *types.Pool) {
	t.Helper()
	require.NoError(t, store.CreatePool(p))
	require.NoError(t, platform.CreatePool(context.Background(), anHourFromNow(), p))
}

func TestReconcilePoolAdvancesAllocatingToPreparingToReady(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	newTrackedPool(t, store, platform, &types.Pool{ID: "pool-1", TargetDedicated: 2, State: types.PoolAbsent})

	ctrl := NewController(store, platform, nil)

	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-1"))
	p, err := store.GetPool("pool-1")
	require.NoError(t, err)
	require.Equal(t, types.PoolPreparing, p.State)

	for _, n := range nodesOf(t, store, "pool-1") {
		platform.SetNodeState("pool-1", n.ID, types.NodeIdle)
	}
	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-1"))
	p, err = store.GetPool("pool-1")
	require.NoError(t, err)
	require.Equal(t, types.PoolReady, p.State)
}

func TestReconcileNodeRebootsOnStartTaskFailure(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	newTrackedPool(t, store, platform, &types.Pool{ID: "pool-2", TargetDedicated: 1, RebootOnStartTaskFailed: true})

	ctrl := NewController(store, platform, nil)
	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-2"))

	nodeID := nodesOf(t, store, "pool-2")[0].ID
	platform.SetNodeState("pool-2", nodeID, types.NodeStartTaskFailed)
	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-2"))

	n, err := store.GetNode(nodeID)
	require.NoError(t, err)
	require.True(t, n.RebootAttempted)
	require.Equal(t, types.NodeStarting, n.State)

	// A second reconcile must not reboot again: RebootAttempted already set.
	platform.SetNodeState("pool-2", nodeID, types.NodeStartTaskFailed)
	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-2"))
	n, err = store.GetNode(nodeID)
	require.NoError(t, err)
	require.Equal(t, types.NodeStartTaskFailed, n.State, "no second reboot once RebootAttempted is set")
}

func TestReconcileNodeRecoversUnusableOnce(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	newTrackedPool(t, store, platform, &types.Pool{ID: "pool-3", TargetDedicated: 1, AttemptRecoveryOnUnusable: true})

	ctrl := NewController(store, platform, nil)
	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-3"))
	nodeID := nodesOf(t, store, "pool-3")[0].ID

	platform.SetNodeState("pool-3", nodeID, types.NodeUnusable)
	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-3"))

	n, err := store.GetNode(nodeID)
	require.NoError(t, err)
	require.Equal(t, 1, n.RecoveryAttempts)
	require.Equal(t, types.NodeDeallocated, n.State)
}

func TestReconcileNodeStopsRecoveryAtBudget(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	node := &types.Node{ID: "n-exhausted", PoolID: "pool-4", State: types.NodeUnusable, RecoveryAttempts: maxRecoveryAttempts}
	require.NoError(t, store.CreateNode(node))

	ctrl := NewController(store, platform, nil)
	pool := &types.Pool{ID: "pool-4", AttemptRecoveryOnUnusable: true}
	ctrl.reconcileNode(context.Background(), anHourFromNow(), pool, node)

	require.Equal(t, maxRecoveryAttempts, node.RecoveryAttempts, "budget exhausted, no further attempt")
}

func TestReconcilePoolPublishesStateTransitions(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	newTrackedPool(t, store, platform, &types.Pool{ID: "pool-5", TargetDedicated: 1, State: types.PoolAbsent})

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	ctrl := NewController(store, platform, nil)
	ctrl.SetEventBroker(broker)

	require.NoError(t, ctrl.ReconcilePool(context.Background(), "pool-5"))

	select {
	case event := <-sub:
		require.Equal(t, events.EventPoolStateChanged, event.Type)
		require.Equal(t, "pool-5", event.Metadata["pool_id"])
		require.Equal(t, string(types.PoolPreparing), event.Metadata["to"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pool state transition event")
	}
}

func nodesOf(t *testing.T, store storage.Store, poolID string) []*types.Node {
	t.Helper()
	nodes, err := store.ListNodesByPool(poolID)
	require.NoError(t, err)
	return nodes
}
