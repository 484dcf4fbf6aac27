// Package placement implements the placement table: the single
// source of truth mapping a key to its current Header.
//
// The table is sharded and every entry is an atomic.Pointer to an
// immutable Header, so reads never block writers and writers never
// block each other across different keys. Every mutation goes through
// InsertOrUpdate, which enforces optimistic concurrency: a caller
// supplies the version it last observed, and the swap only commits if
// no other writer has advanced that key's version since.
package placement
