// Package replacement implements the per-tier replacement index: the
// structure that decides which resident key to evict when a tier is
// under capacity pressure.
//
// Index is sharded the same way pkg/placement is, so touch/remove
// calls from concurrent readers and writers on unrelated keys never
// contend on the same lock. Each shard keeps its own ordering
// structure per the configured tstypes.ReplacementPolicy:
//
//   - LRU: a doubly linked list with a map for O(1) touch/remove,
//     victims selected from the tail.
//   - LFU: a map of access counts; Victim does a linear scan of the
//     shard for the minimum (shards are kept small, so this stays
//     cheap in practice, and avoids a second indexing structure).
//   - ARC: two LRU lists (recency and frequency) approximating the
//     Adaptive Replacement Cache algorithm's T1/T2 ghost-free subset
//     relevant to a single-process store: promote to the frequency
//     list on a second touch, evict from the tail of the recency list,
//     and from the frequency list only once the recency list is empty.
package replacement
