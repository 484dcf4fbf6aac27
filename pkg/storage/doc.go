/*
Package storage implements the tier backend contract: the narrow
put/get/delete/stat/flush surface that every storage tier exposes to
the rest of the store, plus three concrete backends: HeapBackend,
BoltBackend and RemoteBackend (an HTTP client for a remote object
endpoint).

# Architecture

	┌──────────────────── TIER BACKENDS ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │               Backend (interface)            │          │
	│  │  Put / Get / Delete / Stat / Flush           │          │
	│  │  Kind() / DurabilityClass()                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│            ┌─────────┴──────────┐                         │
	│            ▼                    ▼                         │
	│  ┌──────────────────┐  ┌──────────────────────┐          │
	│  │   HeapBackend     │  │    BoltBackend        │          │
	│  │  - in-process map │  │  - bbolt file         │          │
	│  │  - Volatile       │  │  - Durable            │          │
	│  │  - Hot / Warm     │  │  - Cold / Glacier     │          │
	│  └──────────────────┘  └──────────────────────┘          │
	└────────────────────────────────────────────────────────┘

Each backend owns its own bytes and checksums; the placement table
(pkg/placement) is the only source of truth for which tier currently
holds a key. A Backend never looks at another backend and never
mutates a Header — it only moves bytes in and out against an opaque
Handle.

# Design Patterns

Handle opacity:
  - Callers store the Handle a Put returns and present it back
    unchanged to Get/Delete/Stat. A backend is free to make the handle
    a UUID, a file offset, or the key itself.

Checksums:
  - Put computes a checksum over the exact bytes stored and returns it
    so the caller's Header carries it. BoltBackend.Get and
    RemoteBackend.Get recompute the checksum of the bytes they read and
    return tserr.Corrupted on a mismatch; HeapBackend.Get returns its
    bytes without checking.

Error Wrapping:
  - Backends return pkg/tserr sentinels (tserr.NotFound,
    tserr.Corrupted, tserr.BackendUnavailable) so the coordinator can
    classify failures with errors.Is regardless of backend kind.
*/
package storage
