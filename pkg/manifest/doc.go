// Package manifest persists placement-table state to disk so a
// restarted process can recover without replaying every historical
// operation.
//
// Durability is two-layered, the way a Raft log sits under its
// snapshots, minus Raft itself: every
// committed mutation is appended as one newline-delimited JSON Record
// to a write-ahead log, fsynced before the call returns; a checkpoint,
// taken by coordinator.Store.Shutdown and by the tierstore-compact
// tool, writes the full current header set to a separate file and
// truncates the WAL, bounding how much log a recovery has to replay.
package manifest
