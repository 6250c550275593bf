package observer

import (
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
)

// ActionSummary is one row of the `fed jobs list` status view: a federated
// action's job, unique id, kind and current per-action status.
type ActionSummary struct {
	JobID    string
	UniqueID string
	Kind     types.FederatedActionKind
	Status   types.ActionStatus
	Retries  int
}

// ListActions returns a status summary for every action still tracked by
// the federation, in queue order, for the CLI's job-list view (§7
// "Federation failures are visible via fed jobs list").
func ListActions(store storage.Store, federationID string) ([]ActionSummary, error) {
	actions, err := store.ListQueuedActions(federationID)
	if err != nil {
		return nil, err
	}
	out := make([]ActionSummary, 0, len(actions))
	for _, a := range actions {
		out = append(out, ActionSummary{
			JobID:    a.JobID,
			UniqueID: a.UniqueID,
			Kind:     a.Kind,
			Status:   a.Status,
			Retries:  a.RetryCount,
		})
	}
	return out, nil
}

// CountByStatus groups a summary list by status, mirroring the aggregation
// the pool controller performs over node/pool states for its own gauges.
func CountByStatus(summaries []ActionSummary) map[types.ActionStatus]int {
	counts := make(map[types.ActionStatus]int)
	for _, s := range summaries {
		counts[s.Status]++
	}
	return counts
}
