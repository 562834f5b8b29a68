// Package recordstore provides durable, single-writer-at-a-time storage of a
// small JSON document on disk.
//
// A Store owns one pretty-printed UTF-8 JSON file and serializes access to it
// with an OS advisory lock, so independent short-lived processes (trackers,
// learners, feedback loggers) can share the file without stepping on each
// other. Two document shapes are supported by convenience operations:
//
//   - an append-only list of records, capped at a caller-chosen maximum
//     (AppendRecord, PruneOldest)
//   - an object of named sections holding numeric counters (UpdateCounters)
//
// Arbitrary documents round-trip through Read and Write.
//
// # Locking
//
// Locks are taken on a sidecar "<file>.lock" rather than on the document
// itself: writes replace the document via an atomic rename, and locking the
// renamed inode would let a second writer slip past a first one still holding
// the old inode's lock. Read takes a shared lock; every mutation takes an
// exclusive lock for the full read-modify-write sequence. Lock acquisition is
// bounded by the configured timeout and the caller's context.
//
// The lock is advisory. Processes that open the document without going
// through a Store bypass it entirely.
//
// # Failure policy
//
// A write that fails partway never leaves a truncated document visible:
// content is written to a temporary file in the same directory, fsynced, and
// renamed over the target. Invalid JSON found on read is handled per the
// configured CorruptPolicy: either reset to the default document (preserving
// the bad bytes in a sidecar backup and writing the default back to disk) or
// fail with ErrCorruptDocument.
//
// The store never retries; I/O failures surface as *StorageError and the
// caller decides.
package recordstore
