package syncengine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/pathrules"
)

// startupMetaDirName mirrors joinpreview's walk exclusion; kept as a
// distinct constant here since syncengine already defines metaDirPrefix in
// manifest-path form for the watcher.
const startupMetaDirName = ".pearsync"

// runStartupReconciliation implements spec.md section 4.7.8: reconcile
// against the remote manifest under the configured startup conflict
// policy, then publish any local file the remote pass left untouched
// (new files, or files changed since the last run while the engine was
// stopped). Applied tombstones, conflicts and overrides the policy pass
// produced are reported in a single audit event.
func (e *Engine) runStartupReconciliation(ctx context.Context) error {
	policy := config.PolicyRemoteWins
	if e.cfg != nil {
		if p := e.cfg.Sync.Policy(); p != "" {
			policy = p
		}
	}

	affected, err := e.reconcileWithPolicy(ctx, &policy)
	if err != nil {
		return err
	}

	if err := e.publishUnseenLocalFiles(ctx); err != nil {
		return err
	}

	if len(affected) > 0 {
		e.emit(Event{Audit: &AuditEvent{Policy: string(policy), AffectedPaths: affected}})
	}

	return nil
}

// publishUnseenLocalFiles walks the sync root and, for every discovered
// file, either refreshes its tracking entry (content already published) or
// runs it through the normal publish path (new or changed content), per
// refreshOrPublishLocal.
func (e *Engine) publishUnseenLocalFiles(ctx context.Context) error {
	var paths []string

	err := filepath.WalkDir(e.syncRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(e.syncRoot, p)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel == startupMetaDirName || strings.HasPrefix(rel, startupMetaDirName+string(filepath.Separator)) {
				return fs.SkipDir
			}

			return nil
		}

		if rel == "." {
			return nil
		}

		manifestPath, canonErr := pathrules.Canonicalize(rel)
		if canonErr != nil {
			return nil
		}

		paths = append(paths, manifestPath)

		return nil
	})
	if err != nil {
		return fmt.Errorf("syncengine: walking %s: %w", e.syncRoot, err)
	}

	for _, path := range paths {
		if err := e.refreshOrPublishLocal(ctx, path); err != nil {
			e.emit(Event{Error: &ErrorEvent{Message: err.Error()}})
		}
	}

	return nil
}
