package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/events"
	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/metrics"
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
	"github.com/rs/zerolog"
)

// maxRecoveryAttempts bounds delete+replenish recovery so a node stuck in
// a permanently unusable state doesn't consume the pool's resize budget
// forever (§4.I "attempt_recovery_on_unusable... bounded retry budget").
const maxRecoveryAttempts = 3

const controllerOpTimeout = 30 * time.Second

// MountChecker reports whether every shared volume mount in pool is mounted
// on every one of nodeIDs. Actual mount verification happens through the
// node agent's heartbeat, outside this engine's scope; callers that don't
// run an agent can pass a checker that always returns true.
type MountChecker func(poolID string, nodeIDs []string) bool

// Controller drives the pool lifecycle state machine, polling the compute
// platform and reconciling stored state against it.
type Controller struct {
	store        storage.Store
	platform     capability.ComputePlatform
	mountChecker MountChecker
	broker       *events.Broker
	logger       zerolog.Logger
	pollInterval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewController builds a Controller. A nil mountChecker treats every shared
// volume as already mounted.
func NewController(store storage.Store, platform capability.ComputePlatform, mountChecker MountChecker) *Controller {
	if mountChecker == nil {
		mountChecker = func(string, []string) bool { return true }
	}
	return &Controller{
		store:        store,
		platform:     platform,
		mountChecker: mountChecker,
		logger:       log.WithComponent("pool"),
		pollInterval: 10 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// SetEventBroker attaches a broker that ReconcilePool publishes pool
// lifecycle events to. Optional: a Controller with no broker set simply
// doesn't publish.
func (c *Controller) SetEventBroker(broker *events.Broker) {
	c.broker = broker
}

// Start begins the reconciliation loop in the background.
func (c *Controller) Start() {
	go c.run()
}

// Stop halts the reconciliation loop.
func (c *Controller) Stop() {
	close(c.stopCh)
}

func (c *Controller) run() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.logger.Info().Msg("pool controller started")
	for {
		select {
		case <-ticker.C:
			if err := c.ReconcileAll(context.Background()); err != nil {
				c.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-c.stopCh:
			c.logger.Info().Msg("pool controller stopped")
			return
		}
	}
}

// ReconcileAll reconciles every stored pool once.
func (c *Controller) ReconcileAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pools, err := c.store.ListPools()
	if err != nil {
		return fmt.Errorf("listing pools: %w", err)
	}
	counts := map[types.PoolState]int{}
	for _, p := range pools {
		if p.State != types.PoolDeleting {
			if err := c.ReconcilePool(ctx, p.ID); err != nil {
				c.logger.Error().Err(err).Str("pool_id", p.ID).Msg("pool reconcile failed")
			}
		}
		refreshed, err := c.store.GetPool(p.ID)
		if err != nil {
			continue
		}
		counts[refreshed.State]++
	}
	for _, state := range []types.PoolState{types.PoolAbsent, types.PoolAllocating, types.PoolPreparing, types.PoolReady, types.PoolResizing, types.PoolDeleting} {
		metrics.PoolsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
	return nil
}

// ReconcilePool reconciles one pool: refreshes node state from the
// platform, applies per-node recovery policies, then advances the pool's
// own lifecycle state.
func (c *Controller) ReconcilePool(ctx context.Context, poolID string) error {
	pool, err := c.store.GetPool(poolID)
	if err != nil {
		return fmt.Errorf("getting pool %s: %w", poolID, err)
	}
	deadline := time.Now().Add(controllerOpTimeout)

	remote, err := c.platform.ListNodes(ctx, deadline, poolID)
	if err != nil {
		return fmt.Errorf("listing nodes for pool %s: %w", poolID, err)
	}

	nodes := make([]*types.Node, 0, len(remote))
	stateCounts := map[types.NodeState]int{}
	for _, rn := range remote {
		node, err := c.store.GetNode(rn.ID)
		if err != nil {
			node = rn
			if err := c.store.CreateNode(node); err != nil {
				return fmt.Errorf("recording new node %s: %w", node.ID, err)
			}
		} else {
			node.State = rn.State
			node.StartTaskExitCode = rn.StartTaskExitCode
			node.StartTaskStdout = rn.StartTaskStdout
			node.StartTaskStderr = rn.StartTaskStderr
			if err := c.store.UpdateNode(node); err != nil {
				return fmt.Errorf("updating node %s: %w", node.ID, err)
			}
		}
		c.reconcileNode(ctx, deadline, pool, node)
		nodes = append(nodes, node)
		stateCounts[node.State]++
	}

	for state, n := range stateCounts {
		metrics.NodesTotal.WithLabelValues(poolID, string(state)).Set(float64(n))
	}

	return c.reconcilePoolState(pool, nodes)
}

// reconcileNode applies reboot-on-start-task-failed and
// attempt-recovery-on-unusable to a single node.
func (c *Controller) reconcileNode(ctx context.Context, deadline time.Time, pool *types.Pool, node *types.Node) {
	switch node.State {
	case types.NodeStartTaskFailed:
		if !pool.RebootOnStartTaskFailed || node.RebootAttempted {
			return
		}
		if err := c.platform.RebootNode(ctx, deadline, pool.ID, node.ID); err != nil {
			c.logger.Error().Err(err).Str("node_id", node.ID).Msg("reboot after start-task failure failed")
			metrics.NodeRecoveryAttemptsTotal.WithLabelValues("reboot_failed").Inc()
			return
		}
		node.RebootAttempted = true
		node.State = types.NodeStarting
		if err := c.store.UpdateNode(node); err != nil {
			c.logger.Error().Err(err).Str("node_id", node.ID).Msg("failed to persist reboot attempt")
		}
		metrics.NodeRecoveryAttemptsTotal.WithLabelValues("reboot").Inc()

	case types.NodeUnusable:
		c.publishNodeEvent(events.EventNodeUnusable, pool.ID, node.ID, "node unusable")
		if !pool.AttemptRecoveryOnUnusable {
			return
		}
		if node.RecoveryAttempts >= maxRecoveryAttempts {
			metrics.NodeRecoveryAttemptsTotal.WithLabelValues("exhausted").Inc()
			c.publishNodeEvent(events.EventNodeRecoveryExhausted, pool.ID, node.ID, "recovery attempt budget exhausted")
			return
		}
		if err := c.platform.DeleteNode(ctx, deadline, pool.ID, node.ID); err != nil {
			c.logger.Error().Err(err).Str("node_id", node.ID).Msg("unusable-node delete failed")
			metrics.NodeRecoveryAttemptsTotal.WithLabelValues("delete_failed").Inc()
			return
		}
		node.RecoveryAttempts++
		node.State = types.NodeDeallocated
		if err := c.store.UpdateNode(node); err != nil {
			c.logger.Error().Err(err).Str("node_id", node.ID).Msg("failed to persist recovery attempt")
		}
		// Replenishment happens on the next cycle's resize-up: the pool's
		// target counts are unchanged, so ready-barrier / resize logic
		// will request a replacement node.
		metrics.NodeRecoveryAttemptsTotal.WithLabelValues("replenish").Inc()
		c.publishNodeEvent(events.EventNodeRecovered, pool.ID, node.ID, "unusable node deleted, replacement will be requested on next resize")
	}
}

func (c *Controller) publishNodeEvent(eventType events.EventType, poolID, nodeID, message string) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: map[string]string{"pool_id": poolID, "node_id": nodeID},
	})
}

// reconcilePoolState advances pool.State and persists it.
func (c *Controller) reconcilePoolState(pool *types.Pool, nodes []*types.Node) error {
	prev := pool.State

	switch pool.State {
	case "", types.PoolAbsent:
		pool.State = types.PoolAllocating
		fallthrough

	case types.PoolAllocating:
		if len(nodes) >= pool.TargetDedicated+pool.TargetPreemptible {
			pool.State = types.PoolPreparing
		}

	case types.PoolPreparing:
		nodeIDs := nodeIDsOf(nodes)
		verified := imagesVerified(c.store, pool.ID, pool, nodeIDs)
		mounted := c.mountChecker(pool.ID, nodeIDs)
		if ready, _ := ReadyBarrier(pool, nodes, verified, mounted); ready {
			pool.State = types.PoolReady
			metrics.PoolReadyDuration.Observe(time.Since(pool.CreatedAt).Seconds())
		}

	case types.PoolReady:
		target := pool.TargetDedicated + pool.TargetPreemptible
		if len(nodes) != target {
			pool.State = types.PoolResizing
		}

	case types.PoolResizing:
		target := pool.TargetDedicated + pool.TargetPreemptible
		if len(nodes) < target {
			deadline := time.Now().Add(controllerOpTimeout)
			if err := c.platform.ResizePool(context.Background(), deadline, pool.ID, pool.TargetDedicated, pool.TargetPreemptible); err != nil {
				c.logger.Error().Err(err).Str("pool_id", pool.ID).Msg("resize-up to replenish nodes failed")
			}
		}
		if len(nodes) == target {
			pool.State = types.PoolReady
		}
	}

	if pool.State == prev {
		return nil
	}
	c.logger.Info().Str("pool_id", pool.ID).Str("from", string(prev)).Str("to", string(pool.State)).Msg("pool state transition")
	c.publishStateChange(pool, prev)
	return c.store.UpdatePool(pool)
}

func (c *Controller) publishStateChange(pool *types.Pool, from types.PoolState) {
	if c.broker == nil {
		return
	}
	eventType := events.EventPoolStateChanged
	if pool.State == types.PoolReady {
		eventType = events.EventPoolReady
	}
	c.broker.Publish(&events.Event{
		Type:    eventType,
		Message: fmt.Sprintf("pool %s: %s -> %s", pool.ID, from, pool.State),
		Metadata: map[string]string{
			"pool_id": pool.ID,
			"from":    string(from),
			"to":      string(pool.State),
		},
	})
}

func nodeIDsOf(nodes []*types.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
