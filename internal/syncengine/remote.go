package syncengine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/conflictname"
	"github.com/pearsync/pearsync/internal/contenthash"
	"github.com/pearsync/pearsync/internal/manifest"
	"github.com/pearsync/pearsync/internal/pathrules"
	"github.com/pearsync/pearsync/internal/statestore"
)

// remoteReconcileWorkers bounds how many manifest entries are reconciled
// concurrently in one pass. Entries address disjoint paths, so ordering
// across them is unconstrained (spec.md section 5); only per-path ordering
// within a single queue matters, and a reconcile pass is single-shot.
const remoteReconcileWorkers = 8

// reconcileAllRemotes is the RemoteQueue's coalesced task (spec.md section
// 4.7.2, 4.7.5), run with no startup policy override.
func (e *Engine) reconcileAllRemotes(ctx context.Context) error {
	_, err := e.reconcileWithPolicy(ctx, nil)
	return err
}

// reconcileWithPolicy enumerates the manifest and dispatches tombstones and
// remote file updates concurrently, returning the paths where it applied a
// tombstone, wrote a conflict copy, or published a policy override (used by
// startup's audit event); plain downloads are not included. A per-entry failure is
// surfaced as an error event and does not stop the pass (spec.md section
// 4.7.9).
func (e *Engine) reconcileWithPolicy(ctx context.Context, override *config.StartupConflictPolicy) ([]string, error) {
	entries, err := e.log.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncengine: listing manifest: %w", err)
	}

	var (
		mu       sync.Mutex
		affected []string
	)

	g := new(errgroup.Group)
	g.SetLimit(remoteReconcileWorkers)

	for _, entry := range entries {
		entry := entry

		kind, _, classifyErr := pathrules.Classify(entry.Path)
		if classifyErr != nil || kind != pathrules.KeyUserFile {
			continue
		}

		switch entry.Value.Kind {
		case manifest.KindTombstone:
			ts := entry.Value.Tombstone
			if ts.WriterKey == e.selfWriterKey {
				continue
			}

			g.Go(func() error {
				applied, err := e.applyTombstone(ctx, entry.Path, ts)
				e.recordOutcome(&mu, &affected, entry.Path, applied, err)
				return nil
			})
		case manifest.KindFile:
			file := entry.Value.File
			if file.WriterKey == e.selfWriterKey {
				continue
			}

			g.Go(func() error {
				conflicted, err := e.handleRemoteUpdate(ctx, entry.Path, file, override)
				e.recordOutcome(&mu, &affected, entry.Path, conflicted, err)
				return nil
			})
		}
	}

	_ = g.Wait()

	return affected, nil
}

func (e *Engine) recordOutcome(mu *sync.Mutex, affected *[]string, path string, changed bool, err error) {
	if err != nil {
		e.emit(Event{Error: &ErrorEvent{Message: err.Error()}})
		return
	}

	if changed {
		mu.Lock()
		*affected = append(*affected, path)
		mu.Unlock()
	}
}

// handleRemoteUpdate implements spec.md section 4.7.5's decision tree for
// one remote FileMetadata. override, when non-nil, forces the startup
// policy behavior described in section 4.7.8 for any differing pair.
func (e *Engine) handleRemoteUpdate(ctx context.Context, path string, remote *manifest.FileMetadata, override *config.StartupConflictPolicy) (conflicted bool, err error) {
	localBytes, _, localAbsent, err := e.readLocal(path)
	if err != nil {
		return false, err
	}

	if localAbsent {
		return false, e.download(ctx, path, remote)
	}

	localHash, _, err := contenthash.Sum(bytes.NewReader(localBytes))
	if err != nil {
		return false, fmt.Errorf("%w: hashing %s: %v", ErrIO, path, err)
	}

	if localHash == remote.Hash {
		return false, e.state.Set(path, statestore.Entry{
			LastSyncedHash:        localHash,
			LastSyncedMtime:       time.UnixMilli(remote.Mtime),
			LastManifestHash:      remote.Hash,
			LastManifestWriterKey: remote.WriterKey,
		})
	}

	if override != nil {
		switch *override {
		case config.PolicyLocalWins:
			return true, e.publishLocalAsAuthoritative(ctx, path, localBytes, remote)
		case config.PolicyKeepBoth:
			return true, e.conflict(ctx, path, remote, localBytes)
		}
		// PolicyRemoteWins falls through to the normal decision tree.
	}

	tracked, haveTracked := e.state.Get(path)
	if !haveTracked {
		return false, e.download(ctx, path, remote)
	}

	if remote.Hash == tracked.LastManifestHash {
		return false, nil
	}

	if localHash == tracked.LastSyncedHash {
		return false, e.download(ctx, path, remote)
	}

	if remote.BaseHash != nil && *remote.BaseHash == localHash {
		return false, e.download(ctx, path, remote)
	}

	return true, e.conflict(ctx, path, remote, localBytes)
}

// download fetches remote's bytes and writes them to disk (spec.md
// section 4.7.5).
func (e *Engine) download(ctx context.Context, path string, remote *manifest.FileMetadata) error {
	data, err := e.store.Read(ctx, remote.WriterKey, remote.Blocks)
	if err != nil {
		return fmt.Errorf("syncengine: reading remote blocks for %s: %w", path, err)
	}

	abs := e.absPath(path)
	e.suppressed.add(path)

	if err := writeFile(abs, data); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIO, abs, err)
	}

	if err := e.state.Set(path, statestore.Entry{
		LastSyncedHash:        remote.Hash,
		LastSyncedMtime:       time.UnixMilli(remote.Mtime),
		LastManifestHash:      remote.Hash,
		LastManifestWriterKey: remote.WriterKey,
	}); err != nil {
		e.logger.Warn("state persist failed after download", "path", path, "error", err)
	}

	e.emit(Event{Sync: &SyncEvent{Direction: DirectionRemoteToLocal, Type: ChangeUpdate, Path: path}})

	return nil
}

// conflict writes localBytes to a conflict copy named after the local
// peer, then downloads remote over the original path (spec.md section
// 4.7.5).
func (e *Engine) conflict(ctx context.Context, path string, remote *manifest.FileMetadata, localBytes []byte) error {
	short := e.selfWriterKey
	if len(short) > 8 {
		short = short[:8]
	}

	conflictPath := conflictname.Build(path, short, time.Now())

	abs := e.absPath(conflictPath)
	e.suppressed.add(conflictPath)

	if err := writeFile(abs, localBytes); err != nil {
		return fmt.Errorf("%w: writing conflict copy %s: %v", ErrIO, abs, err)
	}

	if err := e.download(ctx, path, remote); err != nil {
		return err
	}

	e.emit(Event{Sync: &SyncEvent{
		Direction:    DirectionRemoteToLocal,
		Type:         ChangeConflict,
		Path:         path,
		ConflictPath: conflictPath,
	}})

	return nil
}

// publishLocalAsAuthoritative implements the local-wins startup override:
// publish the local bytes as a new successor to the remote record (spec.md
// section 4.7.8).
func (e *Engine) publishLocalAsAuthoritative(ctx context.Context, path string, localBytes []byte, remote *manifest.FileMetadata) error {
	hash, size, err := contenthash.Sum(bytes.NewReader(localBytes))
	if err != nil {
		return fmt.Errorf("%w: hashing %s: %v", ErrIO, path, err)
	}

	block, err := e.store.Append(ctx, e.selfWriterKey, localBytes)
	if err != nil {
		return fmt.Errorf("%w: appending blocks for %s: %v", ErrIO, path, err)
	}

	baseHash := remote.Hash
	mtimeMillis := time.Now().UnixMilli()

	fileMeta := &manifest.FileMetadata{
		Size:      size,
		Mtime:     mtimeMillis,
		Hash:      hash,
		BaseHash:  &baseHash,
		Seq:       remote.Seq + 1,
		WriterKey: e.selfWriterKey,
		Blocks:    block,
	}

	if err := e.log.Put(ctx, path, manifest.Value{Kind: manifest.KindFile, File: fileMeta}); err != nil {
		return fmt.Errorf("syncengine: publishing local-wins override for %s: %w", path, err)
	}

	if err := e.state.Set(path, statestore.Entry{
		LastSyncedHash:        hash,
		LastSyncedMtime:       time.UnixMilli(mtimeMillis),
		LastManifestHash:      hash,
		LastManifestWriterKey: e.selfWriterKey,
	}); err != nil {
		e.logger.Warn("state persist failed after local-wins override", "path", path, "error", err)
	}

	e.emit(Event{Sync: &SyncEvent{Direction: DirectionLocalToRemote, Type: ChangeUpdate, Path: path}})

	return nil
}

// readLocal reads path's on-disk bytes, reporting absent=true rather than
// an error when the file does not exist.
func (e *Engine) readLocal(path string) (data []byte, mtime time.Time, absent bool, err error) {
	abs := e.absPath(path)

	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, time.Time{}, true, nil
		}

		return nil, time.Time{}, false, fmt.Errorf("%w: statting %s: %v", ErrIO, abs, statErr)
	}

	data, err = os.ReadFile(abs)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("%w: reading %s: %v", ErrIO, abs, err)
	}

	return data, info.ModTime(), false, nil
}

// writeFile creates abs's parent directory if needed and writes data to
// it, overwriting any existing content.
func writeFile(abs string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}

	return os.WriteFile(abs, data, 0o644)
}
