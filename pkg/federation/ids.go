package federation

import "fmt"

// ErrJobIDCollision is returned by ResolveTaskIDs when the
// federation is in unique-ids mode and the job id has already been seen.
type ErrJobIDCollision struct {
	JobID string
}

func (e *ErrJobIDCollision) Error() string {
	return fmt.Sprintf("job id %q already in use under unique-ids mode", e.JobID)
}

// ResolveTaskIDs implements §4.J step 2: in unique-ids mode a colliding job
// id is rejected outright; otherwise colliding task ids are rewritten with
// a suffix derived from the action's unique_id so they don't collide with
// an existing submission under the same job id.
func ResolveTaskIDs(taskIDs []string, jobID, uniqueID string, uniqueIDsMode bool, jobSeen bool) ([]string, error) {
	if !jobSeen {
		return taskIDs, nil
	}
	if uniqueIDsMode {
		return nil, &ErrJobIDCollision{JobID: jobID}
	}
	suffix := "-" + uniqueID
	out := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		out[i] = id + suffix
	}
	return out, nil
}
