// Package manifestlog defines the ManifestLog contract (spec.md section
// 6.1): the shared, multi-writer, externally-replicated key/value log the
// SyncEngine consumes but never implements transport or replication for.
// It also provides MemLog, an in-process reference implementation used by
// tests and single-peer bootstrap.
package manifestlog

import (
	"context"

	"github.com/pearsync/pearsync/internal/manifest"
)

// Entry pairs a manifest path with its current value, as returned by List.
type Entry struct {
	Path  string
	Value manifest.Value
}

// Log is the externally concurrency-safe, multi-writer manifest log the
// engine consumes. Implementations may deliver Subscribe notifications for
// writes made by any peer, including ones this process issued itself;
// callers coalesce rather than assume exactly-once delivery.
type Log interface {
	// Put validates v against path and stores it, replacing any prior
	// value. PolicyViolation and SchemaError rejections (spec.md section
	// 7) happen here, before any bytes land.
	Put(ctx context.Context, path string, v manifest.Value) error

	// Get returns the current value at path, or ok=false if absent.
	Get(ctx context.Context, path string) (v manifest.Value, ok bool, err error)

	// List returns every (path, value) currently held. Order is
	// unspecified.
	List(ctx context.Context) ([]Entry, error)

	// Remove deletes path's record outright. The engine uses Put with a
	// Tombstone value for user-visible deletes; Remove exists for the log's
	// own housekeeping (e.g. discarding a stale peer record) and is not
	// used in the normal file-delete path.
	Remove(ctx context.Context, path string) error

	// Subscribe returns a channel that receives a notification whenever
	// any path in the log changes, and an unsubscribe function. The
	// channel is buffered; a slow consumer observes coalesced wakeups
	// rather than one notification per write.
	Subscribe() (updates <-chan struct{}, unsubscribe func())

	// CreateInvite mints an opaque code a remote peer can exchange for
	// attachment via Pair.
	CreateInvite(ctx context.Context) (code string, err error)

	// Pair attaches to the group identified by code and returns a Log
	// handle for it. Out of scope for this package's reference
	// implementation: MemLog.Pair returns the same in-process log, since
	// peer discovery and transport are external collaborators (spec.md
	// section 1).
	Pair(ctx context.Context, code string) (Log, error)
}
