/*
Package events provides an in-memory event broker for the tier
store's internal pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
record lifecycle events to interested subscribers. It supports
asynchronous, best-effort delivery over buffered channels, enabling
loose coupling between the publishers (the coordinator, the reconciler
and the backend health monitors) on one side and subscribers (the
coordinator's own backend-health watcher and callers of
coordinator.Store.Subscribe) on the other.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Record Events:                             │          │
	│  │    - record.put, record.deleted             │          │
	│  │    - record.migrated, record.evicted        │          │
	│  │    - record.corrupted                       │          │
	│  │    - record.pinned, record.unpinned         │          │
	│  │                                              │          │
	│  │  Backend Events:                            │          │
	│  │    - backend.unavailable, backend.recovered │          │
	│  │                                              │          │
	│  │  Policy Events:                             │          │
	│  │    - policy.updated                         │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  Coordinator: backend events → /ready state │          │
	│  │  Store.Subscribe callers: any event          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - ID: unique event identifier
  - Type: event type (record.migrated, backend.unavailable, etc.)
  - Timestamp: when the event occurred
  - Message: human-readable description
  - Metadata: key-value pairs for additional context (key, from_tier,
    to_tier, reason, backend)

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Subscriber calls broker.Subscribe()
 2. New buffered channel created
 3. Channel registered in subscriber map
 4. Subscriber channel returned
 5. Subscriber receives events via channel
 6. Subscriber processes events in own goroutine

Unsubscribe Flow:
 1. Subscriber calls broker.Unsubscribe(channel)
 2. Channel removed from subscriber map
 3. Channel closed
 4. Subscriber stops receiving events

# Usage

Creating and Starting Broker:

	import "github.com/cuemby/tierstore/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing Events:

	event := &events.Event{
		ID:      "evt-123",
		Type:    events.EventRecordMigrated,
		Message: "key 'user:42' migrated hot -> warm",
		Metadata: map[string]string{
			"key":       "user:42",
			"from_tier": "hot",
			"to_tier":   "warm",
			"reason":    "age_threshold",
		},
	}
	broker.Publish(event)

# Event Types Catalog

Record Events:

EventRecordPut:
  - Published when: a put commits a new or overwritten header
  - Metadata: key, tier

EventRecordDeleted:
  - Published when: delete removes a resident header
  - Metadata: key

EventRecordMigrated:
  - Published when: the reconciler reverts a migration interrupted by
    a crash; the migration engine itself publishes no events
  - Metadata: key, outcome ("reverted"), tier (the source tier)

EventRecordEvicted:
  - Declared for subscribers; no component in this repository
    publishes it

EventRecordCorrupted:
  - Published when: a checksum mismatch is observed on read, or by the
    reconciler's checksum sweep
  - Metadata: key, tier, backend

EventRecordPinned / EventRecordUnpinned:
  - Published when: pin/unpin commits
  - Metadata: key

Backend Events:

EventBackendUnavail / EventBackendRecovered:
  - Published when: a backend liveness probe changes state
  - Metadata: backend (the tier name the monitor was created for)

Policy Events:

EventPolicyUpdated:
  - Declared for subscribers; UpdatePolicy does not publish it

# Design Patterns

Non-Blocking Publish:
  - Publish sends to buffered channel
  - Returns immediately (no waiting)
  - Events may be dropped if buffer full
  - Trade-off: throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets own channel
  - Independent processing rates
  - Full buffers skip to prevent blocking

Fire-and-Forget:
  - No acknowledgment from subscribers
  - No retry on delivery failure
  - Suitable for monitoring, not critical operations

# Limitations

  - In-memory only (no persistence); the manifest, not this package,
    is the durability mechanism for record state.
  - No event replay or history.
  - No guaranteed delivery (best effort).
  - No topic-based filtering (all events broadcast; filter client-side).

# See Also

  - pkg/coordinator for the operations that publish these events
  - pkg/reconciler, which publishes corruption and migration-revert events
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
