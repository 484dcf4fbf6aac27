// Package migration implements the migration engine: a bounded job
// queue drained by a worker pool that moves a key's bytes from one
// tier to another.
//
// Each job is a weak reference to a key: if the key has been deleted
// or already moved by the time a worker dequeues it, the worker drops
// the job rather than erroring. Workers take a single-writer-per-key
// lease before touching a key, so two jobs for the same key never
// race.
//
// A migration is two-phase and persisted at each phase: the worker
// first CASes the header into StateMigrating (recording FromTier and
// ToTier) and appends that mark to the manifest before touching any
// bytes, then copies into the destination tier and CASes the header
// onto the new location as StateResident. A crash between the two
// phases leaves a StateMigrating header on disk that pkg/reconciler
// resolves back to FromTier once it's old enough to be considered
// abandoned rather than in-flight.
package migration
