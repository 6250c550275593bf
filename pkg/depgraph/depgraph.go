package depgraph

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/batchshipyard/engine/pkg/types"
)

// CycleError reports a dependency cycle, naming every id still unresolved
// when Kahn's algorithm stalls (§4.G "a cycle is a fatal validation error
// naming the offending ids").
type CycleError struct {
	Ids []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among task ids: %v", e.Ids)
}

// Namer assigns dockertask-NNNNN auto-names, strictly monotonic per job.
// Indices below 100000 are zero-padded to five digits; past that the index
// is unpadded (§4.G).
type Namer struct {
	next int
}

// NewNamer starts a namer at the given next-free index (0 for a fresh job).
func NewNamer(next int) *Namer {
	return &Namer{next: next}
}

// Next returns the next auto-generated name and advances the counter.
func (n *Namer) Next() string {
	idx := n.next
	n.next++
	if idx < 100000 {
		return fmt.Sprintf("dockertask-%05d", idx)
	}
	return fmt.Sprintf("dockertask-%d", idx)
}

// ExpandRange resolves an inclusive [from, to] dependency range against
// orderedIDs, the job's tasks in submission order. [a,a] expands to {a}
// (§3, §8).
func ExpandRange(r *types.IDRange, orderedIDs []string) ([]string, error) {
	fromIdx, toIdx := -1, -1
	for i, id := range orderedIDs {
		if id == r.From {
			fromIdx = i
		}
		if id == r.To {
			toIdx = i
		}
	}
	if fromIdx < 0 {
		return nil, fmt.Errorf("dependency range start %q not found among task ids", r.From)
	}
	if toIdx < 0 {
		return nil, fmt.Errorf("dependency range end %q not found among task ids", r.To)
	}
	if fromIdx > toIdx {
		return nil, fmt.Errorf("dependency range [%s,%s] is not increasing in submission order", r.From, r.To)
	}
	out := make([]string, 0, toIdx-fromIdx+1)
	for i := fromIdx; i <= toIdx; i++ {
		out = append(out, orderedIDs[i])
	}
	return out, nil
}

// coordinationSuffix names the synthetic coordination task split out of a
// multi-instance task descriptor.
const coordinationSuffix = "-coordination"

// splitMultiInstance turns a task with a MultiInstanceClause into a
// coordination task and an application task, the application depending on
// the coordination task within the same node group (§4.G invariant 2).
func splitMultiInstance(t *types.TaskDescriptor) (coordination, application *types.TaskDescriptor) {
	coordination = &types.TaskDescriptor{
		ID:                 t.ID + coordinationSuffix,
		JobID:              t.JobID,
		Command:            t.MultiInstance.CoordinationCommand,
		ResourceFiles:      t.MultiInstance.CoordinationResourceFiles,
		Image:              t.Image,
		RemoveAfterExit:    t.RemoveAfterExit,
		UserIdentity:       t.UserIdentity,
		MaxTaskRetries:     t.MaxTaskRetries,
	}
	application = t
	application.DependsOn = append(append([]string(nil), t.DependsOn...), coordination.ID)
	return coordination, application
}

// Compile auto-names unnamed tasks, expands dependency ranges, splits
// multi-instance tasks, and returns a cycle-free submission order. Tasks
// must already carry their final JobID. namer supplies auto-generated ids;
// pass a fresh Namer for each job.
func Compile(tasks []*types.TaskDescriptor, namer *Namer) ([]*types.TaskDescriptor, error) {
	named := make([]*types.TaskDescriptor, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))

	for _, t := range tasks {
		if t.ID == "" {
			t.ID = namer.Next()
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate task id %q within job", t.ID)
		}
		seen[t.ID] = true
		named = append(named, t)
	}

	orderedIDs := make([]string, len(named))
	for i, t := range named {
		orderedIDs[i] = t.ID
	}

	expanded := make([]*types.TaskDescriptor, 0, len(named))
	for _, t := range named {
		if t.DependsOnRange != nil {
			ids, err := ExpandRange(t.DependsOnRange, orderedIDs)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.ID, err)
			}
			t.DependsOn = append(t.DependsOn, ids...)
		}
		if t.MultiInstance != nil {
			coord, app := splitMultiInstance(t)
			expanded = append(expanded, coord, app)
		} else {
			expanded = append(expanded, t)
		}
	}

	return topoSort(expanded)
}

func topoSort(tasks []*types.TaskDescriptor) ([]*types.TaskDescriptor, error) {
	byID := make(map[string]*types.TaskDescriptor, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, t := range tasks {
		byID[t.ID] = t
		if _, ok := inDegree[t.ID]; !ok {
			inDegree[t.ID] = 0
		}
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task id %s", t.ID, dep)
			}
			inDegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []*types.TaskDescriptor
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
				sort.Strings(ready)
			}
		}
	}

	if len(order) != len(tasks) {
		var remaining []string
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Ids: remaining}
	}
	return order, nil
}

// autoNameIndexFromDefault derives a starting index from any pre-existing
// dockertask-NNNNN names already in a job, so resuming expansion of a job
// that already has tasks does not collide with prior auto-names.
func autoNameIndexFromDefault(existing []string) int {
	max := -1
	for _, id := range existing {
		const prefix = "dockertask-"
		if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
			continue
		}
		if n, err := strconv.Atoi(id[len(prefix):]); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// NamerFor builds a Namer that continues past any existing auto-names.
func NamerFor(existingIDs []string) *Namer {
	return NewNamer(autoNameIndexFromDefault(existingIDs))
}
