// Package coordinator exposes the tier store's public API: Put, Get,
// Delete, Pin, Unpin, Flush and AdminMigrate. A Store owns one instance
// of every other subsystem package (placement, accountant, replacement,
// migration, policy, manifest, reconciler, health) and wires them
// together the way pkg/manager wires a node's subsystems, minus the
// Raft and cluster-membership concerns a single-process tier store has
// no use for.
//
// Put reserves capacity on the target tier, falling back to one
// synchronous forced eviction if the reservation fails, before writing
// through the tier's Backend and installing the new Header. Get
// verifies a durable tier's checksum on every read, touches the
// replacement index, and optionally enqueues a promotion job. Delete,
// Pin and Unpin are CAS loops against the placement table. Flush
// drains every dirty key to a durable tier. AdminMigrate bypasses the
// policy evaluator and drives pkg/migration's Engine directly,
// refusing to force an eviction to make room.
package coordinator
