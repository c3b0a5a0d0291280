// Package statestore persists the engine's per-path LocalTrackingEntry map
// (spec.md section 4.4) across restarts. The map is advisory: loss of it
// degrades reconciliation to remote-wins behavior but never corrupts the
// manifest, so failures here are recovered from rather than escalated.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// FileName is the primary state file, relative to the sync root's metadata
// directory (spec.md section 8).
const FileName = "state.json"

// BackupSuffix names the mirror written alongside every successful save.
const BackupSuffix = ".bak"

const (
	stateFilePermissions = 0o644
	stateDirPermissions  = 0o755
)

// Entry is LocalTrackingEntry: the engine's memory of what it believed at
// the moment it last wrote to, or accepted from, disk for one path. It is
// never replicated and carries no conflict-resolution authority of its own.
type Entry struct {
	LastSyncedHash        string    `json:"lastSyncedHash"`
	LastSyncedMtime       time.Time `json:"lastSyncedMtime"`
	LastManifestHash      string    `json:"lastManifestHash"`
	LastManifestWriterKey string    `json:"lastManifestWriterKey"`
}

// Store is a durable map<path, Entry>, backed by a primary JSON file and a
// mirror copy. It serializes its own writes (spec.md section 5: "a third
// queue") so concurrent Set/Remove calls from the engine never interleave
// their file writes.
type Store struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex
	entries  map[string]Entry
	path     string
	backup   string
	logger   *slog.Logger
	writeSeq atomic.Uint64
}

// Open resolves the primary and backup file paths under metaDir and loads
// whatever state already exists there (see Load). metaDir is created if
// absent.
func Open(metaDir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(metaDir, stateDirPermissions); err != nil {
		return nil, fmt.Errorf("statestore: creating %s: %w", metaDir, err)
	}

	s := &Store{
		entries: make(map[string]Entry),
		path:    filepath.Join(metaDir, FileName),
		backup:  filepath.Join(metaDir, FileName+BackupSuffix),
		logger:  logger,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// load implements the crash-recovery cascade: primary, then backup, then a
// reset to empty. A StateFormatError on both files is not fatal — spec.md
// section 9 classifies it as recovered-from, not propagated.
func (s *Store) load() error {
	if entries, err := readEntries(s.path); err == nil {
		s.entries = entries
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("primary state file unreadable, trying backup", "path", s.path, "error", err)
	}

	if entries, err := readEntries(s.backup); err == nil {
		s.logger.Warn("recovered local state from backup", "path", s.backup)
		s.entries = entries
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("backup state file unreadable, resetting to empty", "path", s.backup, "error", err)
	}

	s.entries = make(map[string]Entry)

	return nil
}

// requiredEntryFields are spec.md section 4.4's four required fields; an
// entry missing any of them is a schema violation, not a zero-valued field.
var requiredEntryFields = []string{
	"lastSyncedHash",
	"lastSyncedMtime",
	"lastManifestHash",
	"lastManifestWriterKey",
}

// readEntries parses path's contents, rejecting a non-object root and any
// entry missing a required field (spec.md section 4.4) instead of letting
// json.Unmarshal silently zero-value a missing field into an Entry — a
// missing lastSyncedHash, for instance, must surface as unparseable so load
// falls through to the backup cascade, not be mistaken for an empty hash.
func readEntries(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("statestore: parsing %s: %w", path, err)
	}

	entries := make(map[string]Entry, len(raw))

	for trackedPath, entryData := range raw {
		if err := validateEntryFields(entryData); err != nil {
			return nil, fmt.Errorf("statestore: parsing %s: entry %q: %w", path, trackedPath, err)
		}

		var entry Entry
		if err := json.Unmarshal(entryData, &entry); err != nil {
			return nil, fmt.Errorf("statestore: parsing %s: entry %q: %w", path, trackedPath, err)
		}

		entries[trackedPath] = entry
	}

	return entries, nil
}

// validateEntryFields confirms entryData is a JSON object carrying every
// name in requiredEntryFields.
func validateEntryFields(entryData json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entryData, &fields); err != nil {
		return fmt.Errorf("entry is not an object: %w", err)
	}

	for _, name := range requiredEntryFields {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}

	return nil
}

// Get returns the tracking entry for path, if any.
func (s *Store) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[path]

	return e, ok
}

// Has reports whether path has a tracking entry.
func (s *Store) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[path]

	return ok
}

// Paths returns every tracked path. Order is unspecified.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}

	return paths
}

// Set records entry for path and persists the map. A persist failure is
// returned to the caller but does not roll back the in-memory update — the
// map remains correct for subsequent reads until the next successful
// persist (spec.md section 9).
func (s *Store) Set(path string, entry Entry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.entries[path] = entry
	snapshot := s.cloneLocked()
	s.mu.Unlock()

	return s.persist(snapshot)
}

// Remove deletes path's tracking entry, if any, and persists the map.
func (s *Store) Remove(path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	delete(s.entries, path)
	snapshot := s.cloneLocked()
	s.mu.Unlock()

	return s.persist(snapshot)
}

func (s *Store) cloneLocked() map[string]Entry {
	clone := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		clone[k] = v
	}

	return clone
}

// persist writes snapshot to the primary file, then mirrors it to the
// backup. Both writes are atomic (temp file + fsync + rename), matching the
// discipline internal/config uses for config.toml.
func (s *Store) persist(snapshot map[string]Entry) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("statestore: encoding state: %w", err)
	}

	gen := s.writeSeq.Add(1)

	if err := atomicWriteFile(s.path, data, gen); err != nil {
		return fmt.Errorf("statestore: writing %s: %w", s.path, err)
	}

	if err := atomicWriteFile(s.backup, data, gen); err != nil {
		// The primary write already succeeded; readers still see correct
		// state. A stale backup only matters if the primary is later lost.
		s.logger.Warn("failed to update state backup", "path", s.backup, "error", err)
	}

	return nil
}

// atomicWriteFile writes data to a temp file in path's directory, tagged
// with generation (the Store's persist counter) so successive persists of
// one Store are distinguishable in the directory listing during debugging,
// then fsyncs and renames it into place.
func atomicWriteFile(path string, data []byte, generation uint64) error {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, fmt.Sprintf(".state-%d-*.tmp", generation))
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, stateFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
