package capability

import (
	"context"
	"testing"
	"time"

	"github.com/batchshipyard/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestFakePlatformCreatePoolProvisionsNodes(t *testing.T) {
	fp := NewFakePlatform()
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	p := &types.Pool{ID: "pool-1", TargetDedicated: 2, TargetPreemptible: 1}
	require.NoError(t, fp.CreatePool(ctx, deadline, p))

	nodes, err := fp.ListNodes(ctx, deadline, "pool-1")
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	preemptible := 0
	for _, n := range nodes {
		if n.IsPreemptible {
			preemptible++
		}
	}
	require.Equal(t, 1, preemptible)
}

func TestFakePlatformInjectFailureFiresOnce(t *testing.T) {
	fp := NewFakePlatform()
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	fp.InjectFailure("CreatePool", NewError(KindTransient, "CreatePool", errNotFound))

	err := fp.CreatePool(ctx, deadline, &types.Pool{ID: "pool-1"})
	require.Error(t, err)
	require.True(t, IsTransient(err))

	err = fp.CreatePool(ctx, deadline, &types.Pool{ID: "pool-1"})
	require.NoError(t, err)
}

func TestFakePlatformRebootNode(t *testing.T) {
	fp := NewFakePlatform()
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	require.NoError(t, fp.CreatePool(ctx, deadline, &types.Pool{ID: "pool-1", TargetDedicated: 1}))
	nodes, _ := fp.ListNodes(ctx, deadline, "pool-1")
	require.Len(t, nodes, 1)

	require.NoError(t, fp.RebootNode(ctx, deadline, "pool-1", nodes[0].ID))
	nodes, _ = fp.ListNodes(ctx, deadline, "pool-1")
	require.True(t, nodes[0].RebootAttempted)
	require.Equal(t, types.NodeStarting, nodes[0].State)
}

func TestFakePlatformSubmitTasksRejectsOversizedBatch(t *testing.T) {
	fp := NewFakePlatform()
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	require.NoError(t, fp.AddJob(ctx, deadline, &types.Job{ID: "job-1"}))

	tasks := make([]*types.TaskDescriptor, 101)
	for i := range tasks {
		tasks[i] = &types.TaskDescriptor{ID: itoa(i)}
	}
	err := fp.SubmitTasks(ctx, deadline, "job-1", tasks)
	require.Error(t, err)
	require.True(t, IsPermanent(err))
}
