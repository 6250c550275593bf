package federation

import (
	"math"
	"sort"

	"github.com/batchshipyard/engine/pkg/types"
)

// Slots returns a pool's schedulable slot count (§4.J "A pool's available
// slots = (idle_nodes + running_nodes) × max_tasks_per_node"). Autoscale
// pools with zero slots in a non-steady state are treated as having one
// slot, best-effort.
func Slots(p *types.PoolMatchState) int {
	slots := (p.IdleNodes + p.RunningNodes) * p.Pool.MaxTasksPerNode
	if slots == 0 && p.Autoscale && !p.AutoscaleSteady {
		return 1
	}
	return slots
}

// backlogExempt reports whether the backlog-ratio exclusion is bypassed:
// the job is autoscale-exempt and the pool is steady with zero schedulable
// slots (§4.J "unless autoscale_exempt and the pool is steady with zero
// schedulable slots").
func backlogExempt(p *types.PoolMatchState, c *types.ConstraintSet) bool {
	return c.AutoscaleExempt && p.Autoscale && p.AutoscaleSteady && Slots(p) == 0
}

// backlogRatio computes active_tasks / schedulable_slots for ranking. A
// backlog-exempt pool ranks as having zero backlog: it was exempted
// because it will scale to meet demand, not because it is already idle.
func backlogRatio(p *types.PoolMatchState, c *types.ConstraintSet) float64 {
	if backlogExempt(p, c) {
		return 0
	}
	slots := Slots(p)
	if slots == 0 {
		return math.Inf(1)
	}
	return float64(p.ActiveTasks) / float64(slots)
}

// Matches reports whether pool satisfies every predicate in c (§4.J
// "Constraint set").
func Matches(p *types.PoolMatchState, c *types.ConstraintSet) bool {
	pool := p.Pool

	if c.Native && !pool.NativeContainerMode {
		return false
	}
	if c.Windows && !pool.Windows {
		return false
	}
	// LowPriorityAllow left false excludes pools made only of preemptible
	// nodes; AutoscaleAllow is not consulted. The exclusive flags exclude
	// pools that have dedicated nodes or no autoscale, respectively (§4.J
	// "pool.autoscale.allow/exclusive, pool.low_priority_nodes.allow/exclusive").
	if !c.LowPriorityAllow && pool.TargetPreemptible > 0 && pool.TargetDedicated == 0 {
		return false
	}
	if c.LowPriorityExclusive && pool.TargetDedicated > 0 {
		return false
	}
	if c.AutoscaleExclusive && !pool.AutoscaleEnabled {
		return false
	}
	if c.Location != "" && c.Location != pool.Location {
		return false
	}
	if c.PrivateDockerHub && !pool.ContainerRegistries.PrivateDockerHub {
		return false
	}
	for _, reg := range c.PublicRegistries {
		if !containsStr(pool.ContainerRegistries.Public, reg) {
			return false
		}
	}
	if c.CustomImageARMID != "" && c.CustomImageARMID != pool.CustomImageARMID {
		return false
	}
	if c.VirtualNetworkARMID != "" && c.VirtualNetworkARMID != pool.VirtualNetworkARMID {
		return false
	}
	if c.VMSize != "" && c.VMSize != pool.VMSize {
		return false
	}
	if c.MaxActiveTaskBacklogRatio > 0 && !backlogExempt(p, c) {
		if backlogRatio(p, c) > c.MaxActiveTaskBacklogRatio {
			return false
		}
	}
	if c.CoresAmount > 0 {
		lo, hi := c.CoresAmount, c.CoresAmount*(1+c.SchedulableVariance)
		if p.Cores < lo || p.Cores > hi {
			return false
		}
	}
	if c.MemoryAmount > 0 {
		lo := c.MemoryAmount
		hi := int64(float64(c.MemoryAmount) * (1 + c.SchedulableVariance))
		if p.MemoryBytes < lo || p.MemoryBytes > hi {
			return false
		}
	}
	if c.GPU && pool.Accelerator == nil {
		return false
	}
	if c.Infiniband && (pool.Accelerator == nil || !pool.Accelerator.Infiniband) {
		return false
	}
	return true
}

func containsStr(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

// Rank orders matching pools by §4.J's ranking rule: (a) lowest backlog
// ratio, (b) location equal to the job's prior co-scheduled location, (c)
// highest remaining quota, (d) lexicographic pool id.
func Rank(matches []*types.PoolMatchState, c *types.ConstraintSet) []*types.PoolMatchState {
	out := make([]*types.PoolMatchState, len(matches))
	copy(out, matches)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ra, rb := backlogRatio(a, c), backlogRatio(b, c)
		if ra != rb {
			return ra < rb
		}
		la := a.LastLocationForJob == a.Pool.Location
		lb := b.LastLocationForJob == b.Pool.Location
		if la != lb {
			return la
		}
		if a.RemainingQuota != b.RemainingQuota {
			return a.RemainingQuota > b.RemainingQuota
		}
		return a.Pool.ID < b.Pool.ID
	})
	return out
}

// MatchAndRank filters candidates to those satisfying c, then ranks them.
func MatchAndRank(candidates []*types.PoolMatchState, c *types.ConstraintSet) []*types.PoolMatchState {
	matched := make([]*types.PoolMatchState, 0, len(candidates))
	for _, p := range candidates {
		if Matches(p, c) {
			matched = append(matched, p)
		}
	}
	return Rank(matched, c)
}
