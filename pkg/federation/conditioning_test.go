package federation

import (
	"testing"

	"github.com/batchshipyard/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestConditionStripsGPUWhenPoolLacksAccelerator(t *testing.T) {
	task := &types.TaskDescriptor{GPU: true}
	pool := &types.Pool{ID: "p1"}
	out, _ := Condition(task, pool)
	require.False(t, out.GPU)
}

func TestConditionKeepsGPUWhenPoolHasAccelerator(t *testing.T) {
	task := &types.TaskDescriptor{GPU: true}
	pool := &types.Pool{ID: "p1", Accelerator: &types.AcceleratorSpec{}}
	out, _ := Condition(task, pool)
	require.True(t, out.GPU)
}

func TestConditionForcesSingleTaskPerNodeWhenExclusive(t *testing.T) {
	task := &types.TaskDescriptor{Exclusive: true}
	pool := &types.Pool{ID: "p1", MaxTasksPerNode: 4}
	_, maxTasksPerNode := Condition(task, pool)
	require.Equal(t, 1, maxTasksPerNode)
}

func TestConditionStampsPoolEnvHints(t *testing.T) {
	task := &types.TaskDescriptor{Env: map[string]string{"FOO": "bar"}}
	pool := &types.Pool{ID: "p1", Location: "A"}
	out, _ := Condition(task, pool)
	require.Equal(t, "bar", out.Env["FOO"])
	require.Equal(t, "p1", out.Env["SHIPYARD_POOL_ID"])
	require.Equal(t, "A", out.Env["SHIPYARD_POOL_LOCATION"])
	require.NotContains(t, task.Env, "SHIPYARD_POOL_ID", "original task env left untouched")
}
