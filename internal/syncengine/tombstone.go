package syncengine

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pearsync/pearsync/internal/contenthash"
	"github.com/pearsync/pearsync/internal/manifest"
)

// applyTombstone implements spec.md section 4.7.6: a remote tombstone is
// only actionable against a path this engine is tracking, and only when
// its baseHash matches what was last synced (the stale-tombstone guard
// against replaying a delete against content the tombstone never saw). A
// local edit since the last sync always wins over the delete.
func (e *Engine) applyTombstone(ctx context.Context, path string, ts *manifest.Tombstone) (applied bool, err error) {
	tracked, haveTracked := e.state.Get(path)
	if !haveTracked {
		return false, nil
	}

	if ts.BaseHash == nil || *ts.BaseHash != tracked.LastSyncedHash {
		return false, nil
	}

	localBytes, _, localAbsent, err := e.readLocal(path)
	if err != nil {
		return false, err
	}

	if !localAbsent {
		localHash, _, hashErr := contenthash.Sum(bytes.NewReader(localBytes))
		if hashErr != nil {
			return false, fmt.Errorf("%w: hashing %s: %v", ErrIO, path, hashErr)
		}

		if localHash != tracked.LastSyncedHash {
			// Edit-wins-over-delete: a local edit since the last sync
			// survives the remote delete.
			return false, nil
		}
	}

	abs := e.absPath(path)

	if !localAbsent {
		e.suppressed.add(path)

		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("%w: removing %s: %v", ErrIO, abs, err)
		}
	}

	if err := e.state.Remove(path); err != nil {
		e.logger.Warn("state persist failed after applying tombstone", "path", path, "error", err)
	}

	e.emit(Event{Sync: &SyncEvent{Direction: DirectionRemoteToLocal, Type: ChangeDelete, Path: path}})

	return true, nil
}
