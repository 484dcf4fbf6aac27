// Package accountant tracks per-tier capacity: how many bytes are
// reserved, committed, and free, and reports eviction demand when a
// reservation cannot be satisfied outright.
//
// Reserve/Commit/Release follow the two-phase pattern the migration
// engine and coordinator both depend on: Reserve stakes a claim
// against a tier's budget before any bytes move, Commit finalizes it
// once the backend Put succeeds, and Release gives the claim back on
// any failure path so a crashed or errored writer never leaks
// capacity.
package accountant
