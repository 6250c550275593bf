/*
Package events provides an in-memory event broker for the engine's
observability surface (§4.K "surface terminal states").

The pool controller advances its state machine on its own reconcile loop;
nothing else in the engine needs to poll storage.Store to notice a pool
going ready or a node going unusable. Instead it publishes an Event to a
shared Broker, and anything that wants to react — a log mirror, a future
webhook, shipyardd's own startup logger — subscribes. The pool controller
is the only publisher: the pool.deleted, job.completed, federation.* and
image.* types below are defined, but nothing in the engine publishes them.

# Architecture

	┌──────────────── EVENT BROKER ────────────────┐
	│                                                │
	│  Publisher → Event Channel (buffer: 100)      │
	│       ↓                                        │
	│  Broadcast Loop                                │
	│       ↓                                        │
	│  Subscriber Channels (buffer: 50 each)        │
	└────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Buffered publish: Publish waits only while the 100-event buffer is full
  - Graceful shutdown via stop channel

Event:
  - ID: caller-assigned identifier (may be empty)
  - Type: one of the EventType constants below
  - Timestamp: set by Publish if the caller left it zero
  - Message: human-readable description
  - Metadata: key-value pairs for additional context (pool_id, node_id, ...)

Subscriber:
  - Channel that receives Event pointers, buffered to absorb bursts
  - Created via broker.Subscribe(), closed via broker.Unsubscribe()

# Event Types

Pool lifecycle:
  - pool.state_changed: any PoolState transition, metadata: pool_id, from, to
  - pool.ready: pool crossed into PoolReady
  - pool.deleted: pool removed from the store

Node recovery:
  - node.unusable: a node entered NodeUnusable
  - node.recovered: delete+replenish recovery succeeded
  - node.recovery_exhausted: a node hit the recovery attempt budget

Federation:
  - federation.action_queued, federation.action_completed, federation.action_failed

Image distribution:
  - image.seed_demoted: a P2P seed node dropped out of the swarm

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for event := range sub {
			log.Printf("%s: %s", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:     events.EventPoolStateChanged,
		Message:  "pool pool-a: preparing -> ready",
		Metadata: map[string]string{"pool_id": "pool-a", "from": "preparing", "to": "ready"},
	})

# Design Patterns

Fire-and-forget, fan-out: Publish never waits on subscribers (it waits
only for room in the broker's own buffer, or for Stop), a full subscriber
buffer skips rather than blocks the broadcast loop, and
there is no delivery acknowledgment. This makes the broker suitable for
observability, not for anything that requires guaranteed delivery — state
itself still lives in storage.Store; the broker only announces it.

# See Also

  - pkg/pool for the pool state machine that is this package's only publisher
  - pkg/observer for log mirroring, a natural subscriber
*/
package events
