package statestore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_CreatesMetaDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".pearsync")

	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Paths())

	_, err = os.Stat(dir)
	require.NoError(t, err)
}

func TestSetGetRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)

	entry := Entry{
		LastSyncedHash:        "abc123",
		LastSyncedMtime:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LastManifestHash:      "abc123",
		LastManifestWriterKey: "writer1",
	}

	require.NoError(t, s.Set("/a.txt", entry))
	assert.True(t, s.Has("/a.txt"))

	got, ok := s.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, entry, got)

	assert.Equal(t, []string{"/a.txt"}, s.Paths())

	require.NoError(t, s.Remove("/a.txt"))
	assert.False(t, s.Has("/a.txt"))
	_, ok = s.Get("/a.txt")
	assert.False(t, ok)
}

func TestPersistence_ReloadsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)

	entry := Entry{LastSyncedHash: "h1", LastManifestHash: "h1", LastManifestWriterKey: "w1"}
	require.NoError(t, s.Set("/doc.txt", entry))

	reopened, err := Open(dir, testLogger())
	require.NoError(t, err)

	got, ok := reopened.Get("/doc.txt")
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestPersistence_WritesMirrorBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Set("/a.txt", Entry{LastSyncedHash: "h1"}))

	primary, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	backup, err := os.ReadFile(filepath.Join(dir, FileName+BackupSuffix))
	require.NoError(t, err)

	assert.Equal(t, primary, backup)
}

func TestLoad_FallsBackToBackupWhenPrimaryCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Set("/a.txt", Entry{LastSyncedHash: "good"}))

	// Corrupt only the primary file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))

	reopened, err := Open(dir, testLogger())
	require.NoError(t, err)

	got, ok := reopened.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, "good", got.LastSyncedHash)
}

func TestLoad_ResetsToEmptyWhenBothFilesCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+BackupSuffix), []byte("also not json"), 0o644))

	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Paths())
}

func TestLoad_NoFilesYieldsEmptyStore(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Paths())
}

func TestLoad_FallsBackToBackupWhenPrimaryEntryMissingField(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Set("/a.txt", Entry{LastSyncedHash: "good", LastManifestHash: "good"}))

	// Primary is well-formed JSON but one entry is missing a required field —
	// a hand-edited or partially-written state.json, not a decode failure.
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte(`{"/a.txt":{"lastSyncedHash":"bad","lastManifestWriterKey":"w"}}`), 0o644))

	reopened, err := Open(dir, testLogger())
	require.NoError(t, err)

	got, ok := reopened.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, "good", got.LastSyncedHash, "should recover from backup, not accept the field-incomplete primary")
}

func TestLoad_ResetsToEmptyWhenEntryIsNotAnObject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"/a.txt":"not-an-object"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+BackupSuffix), []byte(`{"/a.txt":42}`), 0o644))

	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Paths())
}

func TestLoad_ResetsToEmptyWhenRootIsNotAnObject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`["/a.txt"]`), 0o644))

	s, err := Open(dir, testLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Paths())
}
