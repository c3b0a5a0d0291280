package syncengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pearsync/pearsync/internal/contenthash"
	"github.com/pearsync/pearsync/internal/manifest"
	"github.com/pearsync/pearsync/internal/statestore"
)

// handleLocalTask dispatches a LocalQueue task to its update or delete
// handler (spec.md section 4.7.4). Any error is surfaced as an error event
// and the queue continues with the next task (section 4.7.9).
func (e *Engine) handleLocalTask(ctx context.Context, t localTask) {
	var err error

	switch t.kind {
	case ChangeUpdate:
		err = e.handleLocalUpdate(ctx, t.path)
	case ChangeDelete:
		err = e.handleLocalDelete(ctx, t.path)
	}

	if err != nil {
		e.emit(Event{Error: &ErrorEvent{Message: err.Error()}})
	}
}

// handleLocalUpdate implements spec.md section 4.7.4's "type = update"
// path: hash, append, publish, track, emit.
func (e *Engine) handleLocalUpdate(ctx context.Context, path string) error {
	abs := e.absPath(path)

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// The file was removed between the watcher event firing and
			// this task running; the next delete event (or the absence
			// of one, if it raced a rename-away) will settle this.
			return nil
		}

		return fmt.Errorf("%w: statting %s: %v", ErrIO, abs, err)
	}

	hash, size, err := contenthash.SumFile(abs)
	if err != nil {
		return fmt.Errorf("%w: hashing %s: %v", ErrIO, abs, err)
	}

	predecessor, havePredecessor, err := e.log.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("syncengine: reading predecessor for %s: %w", path, err)
	}

	var predPtr *manifest.Value
	if havePredecessor {
		predPtr = &predecessor
	}

	if havePredecessor && predecessor.Kind == manifest.KindFile && predecessor.File.Hash == hash {
		// Already published with this exact content; nothing to do.
		return nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrIO, abs, err)
	}

	block, err := e.store.Append(ctx, e.selfWriterKey, data)
	if err != nil {
		return fmt.Errorf("%w: appending blocks for %s: %v", ErrIO, path, err)
	}

	mtimeMillis := info.ModTime().UnixMilli()

	fileMeta := &manifest.FileMetadata{
		Size:      size,
		Mtime:     mtimeMillis,
		Hash:      hash,
		BaseHash:  manifest.BaseHashFor(predPtr),
		Seq:       manifest.NextSeq(predPtr),
		WriterKey: e.selfWriterKey,
		Blocks:    block,
	}

	if err := e.log.Put(ctx, path, manifest.Value{Kind: manifest.KindFile, File: fileMeta}); err != nil {
		return fmt.Errorf("syncengine: publishing %s: %w", path, err)
	}

	if err := e.state.Set(path, statestore.Entry{
		LastSyncedHash:        hash,
		LastSyncedMtime:       time.UnixMilli(mtimeMillis),
		LastManifestHash:      hash,
		LastManifestWriterKey: e.selfWriterKey,
	}); err != nil {
		e.logger.Warn("state persist failed after local publish", "path", path, "error", err)
	}

	e.emit(Event{Sync: &SyncEvent{Direction: DirectionLocalToRemote, Type: ChangeUpdate, Path: path}})

	return nil
}

// handleLocalDelete implements spec.md section 4.7.4's "type = delete"
// path: publish a tombstone only if the predecessor was a live file.
func (e *Engine) handleLocalDelete(ctx context.Context, path string) error {
	predecessor, ok, err := e.log.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("syncengine: reading predecessor for %s: %w", path, err)
	}

	if !ok || predecessor.Kind != manifest.KindFile {
		// Delete of an absent or already-tombstoned path is a no-op.
		return nil
	}

	tombstone := manifest.PutTombstone(&predecessor, e.selfWriterKey, time.Now().UnixMilli())

	if err := e.log.Put(ctx, path, manifest.Value{Kind: manifest.KindTombstone, Tombstone: tombstone}); err != nil {
		return fmt.Errorf("syncengine: publishing tombstone for %s: %w", path, err)
	}

	if err := e.state.Remove(path); err != nil {
		e.logger.Warn("state persist failed after local delete", "path", path, "error", err)
	}

	e.emit(Event{Sync: &SyncEvent{Direction: DirectionLocalToRemote, Type: ChangeDelete, Path: path}})

	return nil
}

// refreshOrPublishLocal implements spec.md section 4.7.8 step 2 for a file
// the startup walk discovers: if its content already matches a manifest
// entry, only refresh its LocalStateStore tracking entry — the store may
// have been lost or reset since that entry was published (section 4.7.9's
// crash-recovery case) — instead of silently doing nothing. A mismatched or
// absent predecessor still goes through the normal publish path.
//
// This is deliberately not folded into handleLocalUpdate's matching-hash
// fast path: a watcher-driven update event reaching that fast path means
// the entry was already tracked when it was published, so there is nothing
// to refresh. Only the startup walk needs to re-derive tracking from the
// manifest instead of trusting a state store that may not have survived.
func (e *Engine) refreshOrPublishLocal(ctx context.Context, path string) error {
	abs := e.absPath(path)

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("%w: statting %s: %v", ErrIO, abs, err)
	}

	hash, _, err := contenthash.SumFile(abs)
	if err != nil {
		return fmt.Errorf("%w: hashing %s: %v", ErrIO, abs, err)
	}

	predecessor, havePredecessor, err := e.log.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("syncengine: reading predecessor for %s: %w", path, err)
	}

	if havePredecessor && predecessor.Kind == manifest.KindFile && predecessor.File.Hash == hash {
		if err := e.state.Set(path, statestore.Entry{
			LastSyncedHash:        hash,
			LastSyncedMtime:       info.ModTime(),
			LastManifestHash:      hash,
			LastManifestWriterKey: predecessor.File.WriterKey,
		}); err != nil {
			e.logger.Warn("state persist failed while refreshing tracking", "path", path, "error", err)
		}

		return nil
	}

	return e.handleLocalUpdate(ctx, path)
}

// absPath converts a manifest path back to an OS-native absolute path
// under the sync root. pathrules.Canonicalize only operates in the other
// direction, so this is a small local inverse: manifest paths are always
// "/"-prefixed and forward-slash, which filepath.Join handles correctly on
// every platform except it must strip the leading slash first.
func (e *Engine) absPath(manifestPath string) string {
	return filepath.Join(e.syncRoot, filepath.FromSlash(manifestPath[1:]))
}
