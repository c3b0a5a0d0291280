package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/manifest"
)

func TestRunStartupReconciliation_AppliesConfiguredPolicyAndEmitsAudit(t *testing.T) {
	e, root := newTestEngine(t)
	e.cfg.Sync.StartupConflictPolicy = string(config.PolicyLocalWins)

	rec := newRecordingRecorder()
	e.recorder = rec

	writeRootFile(t, root, "a.txt", "local wins here")
	ctx := context.Background()
	remotePublish(t, e, ctx, "/a.txt", "remote loses here", nil, 3)

	require.NoError(t, e.runStartupReconciliation(ctx))

	assert.Equal(t, "local wins here", readRootFile(t, root, "a.txt"))

	var sawAudit bool
	for _, ev := range rec.events {
		if ev.Audit != nil {
			sawAudit = true
			assert.Equal(t, string(config.PolicyLocalWins), ev.Audit.Policy)
			assert.Contains(t, ev.Audit.AffectedPaths, "/a.txt")
		}
	}
	assert.True(t, sawAudit, "expected an audit event reporting the startup policy override")
}

func TestRunStartupReconciliation_PublishesNewLocalFiles(t *testing.T) {
	e, root := newTestEngine(t)
	writeRootFile(t, root, "brand-new.txt", "never seen before")

	require.NoError(t, e.runStartupReconciliation(context.Background()))

	v, ok, err := e.log.Get(context.Background(), "/brand-new.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, manifest.KindFile, v.Kind)
}

func TestRunStartupReconciliation_DownloadsRemoteOnlyFilesBeforePublishingLocal(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	remotePublish(t, e, ctx, "/remote-only.txt", "from the remote", nil, 1)

	require.NoError(t, e.runStartupReconciliation(ctx))
	assert.Equal(t, "from the remote", readRootFile(t, root, "remote-only.txt"))
}

func TestPublishUnseenLocalFiles_SkipsMetaDirectory(t *testing.T) {
	e, root := newTestEngine(t)
	metaDir := filepath.Join(root, ".pearsync")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, "state.json"), []byte("{}"), 0o644))

	require.NoError(t, e.publishUnseenLocalFiles(context.Background()))

	entries, err := e.log.List(context.Background())
	require.NoError(t, err)

	for _, entry := range entries {
		assert.NotContains(t, entry.Path, ".pearsync")
	}
}

func TestRunStartupReconciliation_DefaultsToRemoteWinsWhenUnconfigured(t *testing.T) {
	e, root := newTestEngine(t)
	e.cfg.Sync.StartupConflictPolicy = ""

	rec := newRecordingRecorder()
	e.recorder = rec

	writeRootFile(t, root, "a.txt", "local side")
	ctx := context.Background()
	remotePublish(t, e, ctx, "/a.txt", "remote side", nil, 1)

	require.NoError(t, e.runStartupReconciliation(ctx))

	// remote-wins on a first-sight path is a plain download, not flagged
	// as an audited override.
	assert.Equal(t, "remote side", readRootFile(t, root, "a.txt"))
	for _, ev := range rec.events {
		assert.Nil(t, ev.Audit)
	}
}
