package federation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/metrics"
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
	"github.com/rs/zerolog"
)

const submitOpTimeout = 30 * time.Second

// CandidateSource produces the current constraint-matchable pool states for
// a federation. CandidatesFromStore, the binding shipyardd uses, snapshots
// the federation's pools from storage.Store; tests supply a fixed slice.
type CandidateSource func(ctx context.Context) ([]*types.PoolMatchState, error)

// Proxy is the leader-side action processing loop of one federation (§4.J).
type Proxy struct {
	store        storage.Store
	federationID string
	platform     capability.ComputePlatform
	lease        *LeaseHolder
	candidates   CandidateSource
	blackout     *blackoutTracker
	maxWorkers   int
	logger       zerolog.Logger
}

// NewProxy builds a Proxy. maxWorkers bounds how many (job_id, unique_id)
// groups are processed concurrently; processing within a group is always
// strictly serial.
func NewProxy(store storage.Store, federationID string, platform capability.ComputePlatform, lease *LeaseHolder, candidates CandidateSource, blackoutInterval time.Duration, maxWorkers int) *Proxy {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Proxy{
		store:        store,
		federationID: federationID,
		platform:     platform,
		lease:        lease,
		candidates:   candidates,
		blackout:     newBlackoutTracker(blackoutInterval),
		maxWorkers:   maxWorkers,
		logger:       log.WithComponent("federation").With().Str("federation_id", federationID).Logger(),
	}
}

// PollOnce reads the current queue and processes every (job_id, unique_id)
// group concurrently (bounded), serially within each group. Actions that
// already succeeded or failed stay in the queue until zapped and are
// skipped. It is a no-op if this proxy does not currently hold the leader
// lease.
func (p *Proxy) PollOnce(ctx context.Context) error {
	if !p.lease.IsLeader() {
		return nil
	}
	actions, err := p.store.ListQueuedActions(p.federationID)
	if err != nil {
		return err
	}
	p.reportQueueDepth(actions)

	groups := groupActions(actions)
	sem := make(chan struct{}, p.maxWorkers)
	var wg sync.WaitGroup
	for _, group := range groups {
		group := group
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.processGroup(ctx, group)
		}()
	}
	wg.Wait()
	return nil
}

// Zap unconditionally removes a queued action (§4.J "zap").
func (p *Proxy) Zap(uniqueID string) error {
	return p.store.ZapAction(p.federationID, uniqueID)
}

func (p *Proxy) reportQueueDepth(actions []*types.FederatedAction) {
	counts := map[types.ActionStatus]int{}
	for _, a := range actions {
		counts[a.Status]++
	}
	for _, status := range []types.ActionStatus{types.ActionQueued, types.ActionRunning, types.ActionBlocked, types.ActionFailed, types.ActionSucceeded} {
		metrics.FederationQueueDepth.WithLabelValues(p.federationID, string(status)).Set(float64(counts[status]))
	}
}

func groupActions(actions []*types.FederatedAction) [][]*types.FederatedAction {
	order := make([]string, 0)
	groups := map[string][]*types.FederatedAction{}
	for _, a := range actions {
		key := a.JobID + "/" + a.UniqueID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}
	out := make([][]*types.FederatedAction, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func (p *Proxy) processGroup(ctx context.Context, group []*types.FederatedAction) {
	for _, a := range group {
		if a.Status == types.ActionSucceeded || a.Status == types.ActionFailed {
			continue
		}
		if err := p.processAction(ctx, a); err != nil {
			p.logger.Error().Err(err).Str("job_id", a.JobID).Str("unique_id", a.UniqueID).Msg("action processing failed")
		}
	}
}

func (p *Proxy) processAction(ctx context.Context, a *types.FederatedAction) error {
	switch a.Kind {
	case types.ActionZap:
		return p.store.ZapAction(p.federationID, a.UniqueID)
	case types.ActionAddJob:
		return p.submitAddJob(ctx, a)
	case types.ActionTerminate:
		return p.terminateAction(ctx, a)
	case types.ActionDelete:
		a.Status = types.ActionSucceeded
		return p.store.UpdateAction(p.federationID, a)
	default:
		return nil
	}
}

func (p *Proxy) submitAddJob(ctx context.Context, a *types.FederatedAction) error {
	timer := metrics.NewTimer()

	candidates, err := p.candidates(ctx)
	if err != nil {
		return err
	}
	StampPriorLocation(p.store, p.federationID, a.JobID, candidates)
	candidates = p.blackout.filter(a.JobID, candidates, time.Now())
	ranked := MatchAndRank(candidates, a.Constraints)
	if len(ranked) == 0 {
		a.Status = types.ActionBlocked
		metrics.FederationActionsProcessedTotal.WithLabelValues("blocked").Inc()
		return p.store.UpdateAction(p.federationID, a)
	}
	selected := ranked[0]

	ids := make([]string, len(a.Tasks))
	for i, t := range a.Tasks {
		ids[i] = t.ID
	}
	resolved, err := p.resolveTaskIDs(a.JobID, a.UniqueID, ids)
	if err != nil {
		a.Status = types.ActionFailed
		metrics.FederationActionsProcessedTotal.WithLabelValues("failed").Inc()
		p.logger.Error().Err(err).Str("job_id", a.JobID).Msg("task id collision")
		return p.store.UpdateAction(p.federationID, a)
	}

	tasks := make([]*types.TaskDescriptor, len(a.Tasks))
	for i, t := range a.Tasks {
		conditioned, _ := Condition(t, selected.Pool)
		conditioned.ID = resolved[i]
		tasks[i] = conditioned
	}

	deadline := time.Now().Add(submitOpTimeout)
	err = capability.DefaultRetryPolicy.Do(ctx, func() error {
		return p.platform.SubmitTasks(ctx, deadline, a.JobID, tasks)
	})
	timer.ObserveDuration(metrics.FederationSubmitDuration)

	if err != nil {
		if capability.IsTransient(err) {
			a.Status = types.ActionQueued
			a.RetryCount++
			metrics.FederationActionsProcessedTotal.WithLabelValues("requeued").Inc()
		} else {
			a.Status = types.ActionFailed
			metrics.FederationActionsProcessedTotal.WithLabelValues("failed").Inc()
		}
		return p.store.UpdateAction(p.federationID, a)
	}

	a.Status = types.ActionSucceeded
	if err := p.store.SetJobLocation(p.federationID, a.JobID, selected.Pool.ID); err != nil {
		p.logger.Error().Err(err).Str("job_id", a.JobID).Msg("failed to record job location")
	}
	p.blackout.recordSubmit(a.JobID, selected.Pool.ID, time.Now())
	metrics.FederationActionsProcessedTotal.WithLabelValues("succeeded").Inc()
	return p.store.UpdateAction(p.federationID, a)
}

// resolveTaskIDs determines whether jobID has already been placed by this
// federation and delegates to ResolveTaskIDs to either pass the ids through
// unchanged, reject on collision, or rewrite them with the action's unique id.
func (p *Proxy) resolveTaskIDs(jobID, uniqueID string, taskIDs []string) ([]string, error) {
	_, err := p.store.GetJobLocation(p.federationID, jobID)
	jobSeen := true
	if errors.Is(err, storage.ErrNotFound) {
		jobSeen = false
	} else if err != nil {
		return nil, err
	}

	uniqueIDsMode := false
	if fed, ferr := p.store.GetFederation(p.federationID); ferr == nil {
		uniqueIDsMode = fed.UniqueJobIDs
	}

	return ResolveTaskIDs(taskIDs, jobID, uniqueID, uniqueIDsMode, jobSeen)
}

func (p *Proxy) terminateAction(ctx context.Context, a *types.FederatedAction) error {
	deadline := time.Now().Add(submitOpTimeout)
	taskIDs := make([]string, len(a.Tasks))
	for i, t := range a.Tasks {
		taskIDs[i] = t.ID
	}
	err := p.platform.TerminateTasks(ctx, deadline, a.JobID, taskIDs)
	if err != nil {
		a.Status = types.ActionFailed
	} else {
		a.Status = types.ActionSucceeded
	}
	return p.store.UpdateAction(p.federationID, a)
}
