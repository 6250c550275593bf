package federation

import (
	"context"
	"testing"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestProxySubmitsToHighestRankedPool(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	require.NoError(t, platform.AddJob(context.Background(), time.Now().Add(time.Hour), &types.Job{ID: "job-1"}))

	candidates := func(ctx context.Context) ([]*types.PoolMatchState, error) {
		return []*types.PoolMatchState{
			{Pool: &types.Pool{ID: "p1", MaxTasksPerNode: 1}, IdleNodes: 1},
		}, nil
	}

	require.NoError(t, store.EnqueueAction("fed-1", &types.FederatedAction{
		UniqueID: "u1", Kind: types.ActionAddJob, JobID: "job-1",
		Tasks: []*types.TaskDescriptor{{ID: "t1"}}, Constraints: &types.ConstraintSet{},
	}))

	lease := NewLeaseHolder(store, "fed-1", "owner-a", 60)
	lease.tryAcquire()
	proxy := NewProxy(store, "fed-1", platform, lease, candidates, 0, 4)

	require.NoError(t, proxy.PollOnce(context.Background()))

	actions, err := store.ListQueuedActions("fed-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, types.ActionSucceeded, actions[0].Status)

	loc, err := store.GetJobLocation("fed-1", "job-1")
	require.NoError(t, err)
	require.Equal(t, "p1", loc)
}

func TestProxyBlocksWhenNoCandidatesMatch(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	candidates := func(ctx context.Context) ([]*types.PoolMatchState, error) { return nil, nil }

	require.NoError(t, store.EnqueueAction("fed-1", &types.FederatedAction{
		UniqueID: "u1", Kind: types.ActionAddJob, JobID: "job-1", Constraints: &types.ConstraintSet{},
	}))

	lease := NewLeaseHolder(store, "fed-1", "owner-a", 60)
	lease.tryAcquire()
	proxy := NewProxy(store, "fed-1", platform, lease, candidates, 0, 4)

	require.NoError(t, proxy.PollOnce(context.Background()))

	actions, err := store.ListQueuedActions("fed-1")
	require.NoError(t, err)
	require.Equal(t, types.ActionBlocked, actions[0].Status)
}

func TestProxySkipsProcessingWhenNotLeader(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	other := NewLeaseHolder(store, "fed-1", "owner-b", 60)
	other.tryAcquire() // owner-b holds the lease

	follower := NewLeaseHolder(store, "fed-1", "owner-a", 60)
	follower.tryAcquire()
	require.False(t, follower.IsLeader())

	require.NoError(t, store.EnqueueAction("fed-1", &types.FederatedAction{UniqueID: "u1", Kind: types.ActionAddJob, JobID: "job-1"}))

	proxy := NewProxy(store, "fed-1", platform, follower, func(context.Context) ([]*types.PoolMatchState, error) { return nil, nil }, 0, 4)
	require.NoError(t, proxy.PollOnce(context.Background()))

	actions, err := store.ListQueuedActions("fed-1")
	require.NoError(t, err)
	require.Equal(t, types.ActionQueued, actions[0].Status, "a follower must not process the queue")
}

func TestProxyZapRemovesAction(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnqueueAction("fed-1", &types.FederatedAction{UniqueID: "u1", Kind: types.ActionAddJob, JobID: "job-1"}))

	lease := NewLeaseHolder(store, "fed-1", "owner-a", 60)
	lease.tryAcquire()
	proxy := NewProxy(store, "fed-1", capability.NewFakePlatform(), lease, nil, 0, 4)

	require.NoError(t, proxy.Zap("u1"))
	actions, err := store.ListQueuedActions("fed-1")
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestProxyFailsActionOnTaskIDCollisionInUniqueIDsMode(t *testing.T) {
	store := newTestStore(t)
	platform := capability.NewFakePlatform()
	require.NoError(t, platform.AddJob(context.Background(), time.Now().Add(time.Hour), &types.Job{ID: "job-1"}))
	require.NoError(t, store.CreateFederation(&types.Federation{ID: "fed-1", UniqueJobIDs: true}))
	require.NoError(t, store.SetJobLocation("fed-1", "job-1", "p0"))

	candidates := func(ctx context.Context) ([]*types.PoolMatchState, error) {
		return []*types.PoolMatchState{
			{Pool: &types.Pool{ID: "p1", MaxTasksPerNode: 1}, IdleNodes: 1},
		}, nil
	}

	require.NoError(t, store.EnqueueAction("fed-1", &types.FederatedAction{
		UniqueID: "u1", Kind: types.ActionAddJob, JobID: "job-1",
		Tasks: []*types.TaskDescriptor{{ID: "t1"}}, Constraints: &types.ConstraintSet{},
	}))

	lease := NewLeaseHolder(store, "fed-1", "owner-a", 60)
	lease.tryAcquire()
	proxy := NewProxy(store, "fed-1", platform, lease, candidates, 0, 4)

	require.NoError(t, proxy.PollOnce(context.Background()))

	actions, err := store.ListQueuedActions("fed-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, types.ActionFailed, actions[0].Status)
}

func TestGroupActionsPreservesFIFOWithinGroupAcrossGroups(t *testing.T) {
	actions := []*types.FederatedAction{
		{JobID: "a", UniqueID: "1", Sequence: 1},
		{JobID: "b", UniqueID: "1", Sequence: 2},
		{JobID: "a", UniqueID: "1", Sequence: 3},
	}
	groups := groupActions(actions)
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	require.Equal(t, int64(1), groups[0][0].Sequence)
	require.Equal(t, int64(3), groups[0][1].Sequence)
}
