// Package tserr defines the closed error taxonomy surfaced to clients
// of the tier store. Internal packages return these sentinels
// (optionally wrapped with context via fmt.Errorf("...: %w")) so
// callers can classify failures with errors.Is regardless of which
// subsystem produced them.
package tserr

import "errors"

var (
	// NotFound is returned when a key has no header, or its header is
	// Tombstone.
	NotFound = errors.New("not found")

	// AlreadyExists is returned by put when the key exists and
	// opts.Overwrite is false.
	AlreadyExists = errors.New("already exists")

	// NoCapacity is returned when a tier reservation fails after one
	// forced-eviction retry.
	NoCapacity = errors.New("no capacity")

	// Corrupted is returned when a checksum verification fails on read
	// from a durable tier. The key is fenced once this is observed.
	Corrupted = errors.New("corrupted")

	// BackendUnavailable is returned when a backend error's retry
	// budget is exhausted, or a permanent error has no durable fallback.
	BackendUnavailable = errors.New("backend unavailable")

	// Timeout is returned when a caller-supplied deadline elapses
	// before the operation commits.
	Timeout = errors.New("timeout")

	// InvalidArgument is returned for client errors: empty key,
	// oversized record for target tier, unknown tier.
	InvalidArgument = errors.New("invalid argument")

	// Pinned is returned when an operation that requires evicting or
	// moving a pinned key cannot proceed.
	Pinned = errors.New("pinned")

	// CASFailed is an internal placement-table error: the expected
	// version did not match. Callers of insert_or_update should retry
	// or treat it as a dropped operation, never surface it directly.
	CASFailed = errors.New("cas failed")
)
