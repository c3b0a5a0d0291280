package syncengine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/contenthash"
	"github.com/pearsync/pearsync/internal/manifest"
	"github.com/pearsync/pearsync/internal/statestore"
)

const remoteWriter = "remotepeer1"

// remotePublish appends content to the remote writer's block log and puts
// a matching FileMetadata record into the engine's manifest, returning it.
func remotePublish(t *testing.T, e *Engine, ctx context.Context, path, content string, baseHash *string, seq int64) *manifest.FileMetadata {
	t.Helper()

	hash, size, err := contenthash.Sum(strings.NewReader(content))
	require.NoError(t, err)

	block, err := e.store.Append(ctx, remoteWriter, []byte(content))
	require.NoError(t, err)

	fm := &manifest.FileMetadata{
		Size:      size,
		Hash:      hash,
		BaseHash:  baseHash,
		Seq:       seq,
		WriterKey: remoteWriter,
		Blocks:    block,
	}

	require.NoError(t, e.log.Put(ctx, path, manifest.Value{Kind: manifest.KindFile, File: fm}))

	return fm
}

func readRootFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)

	return string(data)
}

func TestHandleRemoteUpdate_DownloadsWhenLocalAbsent(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	fm := remotePublish(t, e, ctx, "/a.txt", "remote content", nil, 1)

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.False(t, conflicted)
	assert.Equal(t, "remote content", readRootFile(t, root, "a.txt"))

	entry, ok := e.state.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, fm.Hash, entry.LastSyncedHash)
}

func TestHandleRemoteUpdate_UpdatesTrackingOnlyWhenContentAlreadyMatches(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "same bytes")
	fm := remotePublish(t, e, ctx, "/a.txt", "same bytes", nil, 1)

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.False(t, conflicted)
	assert.Equal(t, "same bytes", readRootFile(t, root, "a.txt"))

	entry, ok := e.state.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, fm.Hash, entry.LastManifestHash)
}

func TestHandleRemoteUpdate_DownloadsOnFirstSightOfDifferingPath(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "local content")
	fm := remotePublish(t, e, ctx, "/a.txt", "remote content", nil, 1)

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.False(t, conflicted)
	assert.Equal(t, "remote content", readRootFile(t, root, "a.txt"))
}

func TestHandleRemoteUpdate_NoopWhenRemoteUnchangedSinceLastSeen(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "local edit")
	fm := remotePublish(t, e, ctx, "/a.txt", "remote content", nil, 1)

	require.NoError(t, e.state.Set("/a.txt", statestore.Entry{
		LastSyncedHash:        "irrelevant-old-hash",
		LastManifestHash:      fm.Hash, // already seen this exact remote version
		LastManifestWriterKey: remoteWriter,
	}))

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.False(t, conflicted)
	assert.Equal(t, "local edit", readRootFile(t, root, "a.txt"), "local edit must survive, remote is stale news")
}

func TestHandleRemoteUpdate_DownloadsWhenLocalNeverDivergedFromLastSync(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "old synced content")

	localHash, _, err := contenthash.Sum(strings.NewReader("old synced content"))
	require.NoError(t, err)

	fm := remotePublish(t, e, ctx, "/a.txt", "new remote content", nil, 2)

	require.NoError(t, e.state.Set("/a.txt", statestore.Entry{
		LastSyncedHash:        localHash,
		LastManifestHash:      "some-prior-remote-hash",
		LastManifestWriterKey: remoteWriter,
	}))

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.False(t, conflicted)
	assert.Equal(t, "new remote content", readRootFile(t, root, "a.txt"))
}

func TestHandleRemoteUpdate_DownloadsOnFastForward(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "base content")

	localHash, _, err := contenthash.Sum(strings.NewReader("base content"))
	require.NoError(t, err)

	fm := remotePublish(t, e, ctx, "/a.txt", "forked from base", &localHash, 2)

	require.NoError(t, e.state.Set("/a.txt", statestore.Entry{
		LastSyncedHash:        "something-else-we-edited-to",
		LastManifestHash:      "old-remote-hash",
		LastManifestWriterKey: remoteWriter,
	}))

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.False(t, conflicted)
	assert.Equal(t, "forked from base", readRootFile(t, root, "a.txt"))
}

func TestHandleRemoteUpdate_ConflictsOnGenuineDivergence(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "our independent edit")

	fm := remotePublish(t, e, ctx, "/a.txt", "their independent edit", nil, 2)

	require.NoError(t, e.state.Set("/a.txt", statestore.Entry{
		LastSyncedHash:        "neither-matches-this",
		LastManifestHash:      "nor-this",
		LastManifestWriterKey: remoteWriter,
	}))

	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, nil)
	require.NoError(t, err)
	assert.True(t, conflicted)
	assert.Equal(t, "their independent edit", readRootFile(t, root, "a.txt"), "loser's path ends up with the remote content")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var foundConflictCopy bool
	for _, ent := range entries {
		if strings.Contains(ent.Name(), ".conflict-") {
			foundConflictCopy = true
			content, err := os.ReadFile(filepath.Join(root, ent.Name()))
			require.NoError(t, err)
			assert.Equal(t, "our independent edit", string(content))
		}
	}
	assert.True(t, foundConflictCopy, "expected a conflict copy to be written")
}

func TestHandleRemoteUpdate_OverrideLocalWinsPublishesLocalAsSuccessor(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "local is authoritative")

	fm := remotePublish(t, e, ctx, "/a.txt", "remote content", nil, 5)

	policy := config.PolicyLocalWins
	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, &policy)
	require.NoError(t, err)
	assert.True(t, conflicted)
	assert.Equal(t, "local is authoritative", readRootFile(t, root, "a.txt"))

	v, ok, err := e.log.Get(ctx, "/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.selfWriterKey, v.File.WriterKey)
	assert.Equal(t, fm.Seq+1, v.File.Seq)
	require.NotNil(t, v.File.BaseHash)
	assert.Equal(t, fm.Hash, *v.File.BaseHash)
}

func TestHandleRemoteUpdate_OverrideKeepBothAlwaysConflicts(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "local side")

	// No tracked entry at all — normally this would just download (first
	// sight), but keep-both must force a conflict regardless.
	fm := remotePublish(t, e, ctx, "/a.txt", "remote side", nil, 1)

	policy := config.PolicyKeepBoth
	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, &policy)
	require.NoError(t, err)
	assert.True(t, conflicted)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var foundConflictCopy bool
	for _, ent := range entries {
		if strings.Contains(ent.Name(), ".conflict-") {
			foundConflictCopy = true
		}
	}
	assert.True(t, foundConflictCopy)
}

func TestHandleRemoteUpdate_OverrideRemoteWinsFallsThroughToNormalTree(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	writeRootFile(t, root, "a.txt", "local content")

	fm := remotePublish(t, e, ctx, "/a.txt", "remote content", nil, 1)

	policy := config.PolicyRemoteWins
	conflicted, err := e.handleRemoteUpdate(ctx, "/a.txt", fm, &policy)
	require.NoError(t, err)
	assert.False(t, conflicted) // first-sight download, not a conflict
	assert.Equal(t, "remote content", readRootFile(t, root, "a.txt"))
}

func TestDownload_ConsumesASuppressionCredit(t *testing.T) {
	e, root := newTestEngine(t)
	ctx := context.Background()
	fm := remotePublish(t, e, ctx, "/a.txt", "content", nil, 1)

	require.NoError(t, e.download(ctx, "/a.txt", fm))

	assert.True(t, e.suppressed.take("/a.txt"), "download should have left exactly one suppression credit")
	assert.Equal(t, "content", readRootFile(t, root, "a.txt"))
}

func TestReadLocal_ReportsAbsentWithoutError(t *testing.T) {
	e, _ := newTestEngine(t)
	data, _, absent, err := e.readLocal("/nope.txt")
	require.NoError(t, err)
	assert.True(t, absent)
	assert.Nil(t, data)
}

func TestWriteFile_CreatesParentDirectories(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "nested", "dir", "file.txt")
	require.NoError(t, writeFile(target, []byte("x")))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("x"), data))
}
