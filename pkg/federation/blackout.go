package federation

import (
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/types"
)

// blackoutTracker remembers, per job id, the last pool an action was
// submitted to and until when that pool is excluded from the candidates for
// the job's next action (§4.J "apply blackout_interval before re-selecting the
// same pool for the next action").
type blackoutTracker struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]blackoutEntry // job id -> entry
}

type blackoutEntry struct {
	poolID string
	until  time.Time
}

func newBlackoutTracker(interval time.Duration) *blackoutTracker {
	return &blackoutTracker{interval: interval, last: map[string]blackoutEntry{}}
}

func (b *blackoutTracker) recordSubmit(jobID, poolID string, now time.Time) {
	if b.interval <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[jobID] = blackoutEntry{poolID: poolID, until: now.Add(b.interval)}
}

// filter removes the blacked-out pool from candidates, if still within its
// blackout window.
func (b *blackoutTracker) filter(jobID string, candidates []*types.PoolMatchState, now time.Time) []*types.PoolMatchState {
	b.mu.Lock()
	entry, ok := b.last[jobID]
	b.mu.Unlock()
	if !ok || now.After(entry.until) {
		return candidates
	}
	out := make([]*types.PoolMatchState, 0, len(candidates))
	for _, c := range candidates {
		if c.Pool.ID != entry.poolID {
			out = append(out, c)
		}
	}
	return out
}
