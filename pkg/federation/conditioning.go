package federation

import "github.com/batchshipyard/engine/pkg/types"

// Condition adjusts a task descriptor's resource hints to the pool it was
// matched against (§4.J "Dynamic resource conditioning: adjust shm_size,
// gpu, infiniband, max_tasks_per_node, exclusive, and environment hints to
// the selected pool"). It returns a new descriptor and the effective
// max_tasks_per_node the submission should use for this task.
func Condition(task *types.TaskDescriptor, pool *types.Pool) (*types.TaskDescriptor, int) {
	out := *task
	out.Env = make(map[string]string, len(task.Env)+2)
	for k, v := range task.Env {
		out.Env[k] = v
	}
	out.Env["SHIPYARD_POOL_ID"] = pool.ID
	out.Env["SHIPYARD_POOL_LOCATION"] = pool.Location

	if out.GPU && pool.Accelerator == nil {
		out.GPU = false
	}
	if out.Infiniband && (pool.Accelerator == nil || !pool.Accelerator.Infiniband) {
		out.Infiniband = false
	}
	if out.ShmSize != "" && pool.Windows {
		out.ShmSize = "" // shm_size has no meaning on a Windows pool
	}

	maxTasksPerNode := pool.MaxTasksPerNode
	if out.Exclusive {
		maxTasksPerNode = 1
	}
	return &out, maxTasksPerNode
}
