package storage

import (
	"context"

	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Backend is the contract every storage tier implements.
// The placement table, not the backend, is the source of truth for
// which tier currently holds a key; a Backend only moves bytes against
// an opaque Handle.
type Backend interface {
	// Put stores data and returns the handle and checksum to record in
	// the caller's Header.
	Put(ctx context.Context, data []byte) (tstypes.Handle, uint64, error)

	// Get returns the bytes previously stored under handle.
	Get(ctx context.Context, handle tstypes.Handle) ([]byte, error)

	// Delete removes the bytes stored under handle. Deleting an
	// unknown handle is not an error: the migration engine's
	// copy-before-delete ordering may race a concurrent cleanup.
	Delete(ctx context.Context, handle tstypes.Handle) error

	// Stat reports the size and checksum recorded for handle without
	// reading the full payload.
	Stat(ctx context.Context, handle tstypes.Handle) (size uint64, checksum uint64, err error)

	// Flush forces any buffered writes to the backend's durability
	// boundary. For a volatile backend this is a no-op.
	Flush(ctx context.Context) error

	// Kind names the backend for metrics and logging ("heap", "bolt").
	Kind() string

	// DurabilityClass reports whether bytes survive a process crash.
	DurabilityClass() tstypes.DurabilityClass

	// ListHandles enumerates every handle currently stored, regardless
	// of whether the placement table still references it. The
	// reconciler uses this to find orphaned bytes left behind by a
	// migration or delete that crashed after the backend write but
	// before the placement table or manifest recorded it.
	ListHandles(ctx context.Context) ([]tstypes.Handle, error)
}
