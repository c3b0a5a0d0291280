// Package journal keeps a durable, queryable history of the engine's
// sync/audit/error events (spec.md section 11.5 supplement), distinct from
// the advisory, JSON-only LocalStateStore. It is additive bookkeeping: the
// engine's invariants depend only on the manifest and LocalStateStore, and
// a journal write failure is logged rather than surfaced to the caller.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/pearsync/pearsync/internal/syncengine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// FileName is the journal database, relative to the sync root's metadata
// directory.
const FileName = "journal.db"

// Entry is one stored event row, flattened across the sync/audit/error
// variants (only the fields relevant to Kind are populated).
type Entry struct {
	ID            int64
	RecordedAt    time.Time
	Kind          string // "sync", "audit", or "error"
	Direction     string
	ChangeType    string
	Path          string
	ConflictPath  string
	Policy        string
	AffectedPaths []string
	Message       string
}

// Store is a SQLite-backed Recorder (spec.md section 11.5).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	insert *sql.Stmt
}

// Open creates metaDir if needed, opens (or creates) the journal database
// inside it, and applies pending migrations.
func Open(ctx context.Context, metaDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating meta dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(metaDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("journal: opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: setting WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	insert, err := db.PrepareContext(ctx, sqlInsertEvent)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: preparing insert statement: %w", err)
	}

	return &Store{db: db, logger: logger, insert: insert}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied journal migration",
			"source", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements syncengine.Recorder. Failures are logged, not
// returned — a missed journal write never blocks or fails a sync.
func (s *Store) Record(ev syncengine.Event) {
	if err := s.insertEvent(context.Background(), ev); err != nil {
		s.logger.Warn("journal: failed to record event", "error", err)
	}
}

const sqlInsertEvent = `INSERT INTO events
	(recorded_at, kind, direction, change_type, path, conflict_path, policy, affected_paths, message)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) insertEvent(ctx context.Context, ev syncengine.Event) error {
	now := time.Now().UnixMilli()

	switch {
	case ev.Sync != nil:
		_, err := s.insert.ExecContext(ctx, now, "sync",
			string(ev.Sync.Direction), string(ev.Sync.Type), ev.Sync.Path, nullIfEmpty(ev.Sync.ConflictPath),
			nil, nil, nil)

		return err
	case ev.Audit != nil:
		affected, err := json.Marshal(ev.Audit.AffectedPaths)
		if err != nil {
			return fmt.Errorf("journal: marshaling affected paths: %w", err)
		}

		_, err = s.insert.ExecContext(ctx, now, "audit",
			nil, nil, nil, nil, ev.Audit.Policy, string(affected), nil)

		return err
	case ev.Error != nil:
		_, err := s.insert.ExecContext(ctx, now, "error",
			nil, nil, nil, nil, nil, nil, ev.Error.Message)

		return err
	default:
		return nil
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// Tail returns the most recent n events, oldest first.
func (s *Store) Tail(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, recorded_at, kind, direction, change_type, path,
		conflict_path, policy, affected_paths, message
		FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: querying tail: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scanning row: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating rows: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// ConflictCount returns the number of sync-conflict events ever recorded.
func (s *Store) ConflictCount(ctx context.Context) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE kind = 'sync' AND change_type = 'conflict'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("journal: counting conflicts: %w", err)
	}

	return count, nil
}

// LastAudit returns the most recent audit event, or ok=false if none has
// been recorded.
func (s *Store) LastAudit(ctx context.Context) (entry Entry, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, recorded_at, kind, direction, change_type, path,
		conflict_path, policy, affected_paths, message
		FROM events WHERE kind = 'audit' ORDER BY id DESC LIMIT 1`)

	entry, err = scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}

		return Entry{}, false, fmt.Errorf("journal: querying last audit event: %w", err)
	}

	return entry, true, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (Entry, error) {
	var (
		e                                                                         Entry
		recordedAtMillis                                                          int64
		direction, changeType, path, conflictPath, policy, affectedPaths, message sql.NullString
	)

	if err := row.Scan(&e.ID, &recordedAtMillis, &e.Kind, &direction, &changeType, &path,
		&conflictPath, &policy, &affectedPaths, &message); err != nil {
		return Entry{}, err
	}

	e.RecordedAt = time.UnixMilli(recordedAtMillis)
	e.Direction = direction.String
	e.ChangeType = changeType.String
	e.Path = path.String
	e.ConflictPath = conflictPath.String
	e.Policy = policy.String
	e.Message = message.String

	if affectedPaths.Valid && affectedPaths.String != "" {
		if err := json.Unmarshal([]byte(affectedPaths.String), &e.AffectedPaths); err != nil {
			return Entry{}, fmt.Errorf("unmarshaling affected paths: %w", err)
		}
	}

	return e, nil
}
