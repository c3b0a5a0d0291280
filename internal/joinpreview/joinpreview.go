// Package joinpreview offers a read-only, offline comparison of a paired
// remote manifest against a local directory, so a user can see what each
// startup conflict policy would do before committing to it (spec.md
// section 4.6).
package joinpreview

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/contenthash"
	"github.com/pearsync/pearsync/internal/manifest"
	"github.com/pearsync/pearsync/internal/manifestlog"
	"github.com/pearsync/pearsync/internal/pathrules"
)

// hashWorkers bounds how many files are hashed concurrently during a
// preview walk — hashing is CPU- and disk-bound, so an unbounded fan-out
// would thrash rather than help on large trees.
const hashWorkers = 8

// maxSamples is how many example paths are kept per category.
const maxSamples = 10

// metaDirName is the engine's own metadata directory, excluded from scans
// (spec.md section 4.6: "skipping /.pearsync/**").
const metaDirName = ".pearsync"

// Counts tallies the five comparison categories (spec.md section 4.6).
type Counts struct {
	RemoteOnly        int
	Matching          int
	FileConflict      int
	TombstoneConflict int
	LocalOnly         int
}

// PolicyImpact projects what one startup conflict policy would do, given
// Counts (spec.md section 4.6).
type PolicyImpact struct {
	Overwrites     int
	Deletes        int
	Uploads        int
	ConflictCopies int
}

// impactForPolicy computes the PolicyImpact for c under policy.
func impactForPolicy(c Counts, policy config.StartupConflictPolicy) PolicyImpact {
	switch policy {
	case config.PolicyRemoteWins:
		return PolicyImpact{Overwrites: c.FileConflict, Deletes: c.TombstoneConflict}
	case config.PolicyLocalWins:
		return PolicyImpact{Uploads: c.FileConflict, ConflictCopies: c.TombstoneConflict}
	case config.PolicyKeepBoth:
		return PolicyImpact{ConflictCopies: c.FileConflict + c.TombstoneConflict}
	default:
		return PolicyImpact{}
	}
}

// Samples holds up-to-maxSamples example paths per category.
type Samples struct {
	RemoteOnly        []string
	Matching          []string
	FileConflict      []string
	TombstoneConflict []string
	LocalOnly         []string
}

// Result is the full comparison output, plus a PreparedSession the caller
// can hand to the engine's start() so it does not redo the pairing
// handshake (spec.md section 4.6).
type Result struct {
	Counts  Counts
	Samples Samples
	Impact  map[config.StartupConflictPolicy]PolicyImpact
	Session *PreparedSession
}

// PreparedSession carries the paired ManifestLog and the local hash map
// computed while building Result. The engine takes Log from it so start()
// does not re-pair; it does not read LocalHash and hashes the directory
// again during its startup walk.
type PreparedSession struct {
	Log       manifestlog.Log
	LocalRoot string
	LocalHash map[string]string // manifest path -> content hash
}

// Run walks localRoot and compares it with the manifest held by log, which
// must already be paired (see Pair). logger may be nil.
func Run(ctx context.Context, log manifestlog.Log, localRoot string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	localHash, err := hashLocalDirectory(localRoot)
	if err != nil {
		return nil, fmt.Errorf("joinpreview: hashing local directory: %w", err)
	}

	entries, err := log.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("joinpreview: listing manifest: %w", err)
	}

	var counts Counts
	var samples Samples
	remaining := make(map[string]string, len(localHash))
	for p, h := range localHash {
		remaining[p] = h
	}

	for _, entry := range entries {
		kind, _, err := pathrules.Classify(entry.Path)
		if err != nil || kind != pathrules.KeyUserFile {
			continue
		}

		localH, haveLocal := localHash[entry.Path]

		switch entry.Value.Kind {
		case manifest.KindFile:
			delete(remaining, entry.Path)

			switch {
			case !haveLocal:
				counts.RemoteOnly++
				appendSample(&samples.RemoteOnly, entry.Path)
			case localH == entry.Value.File.Hash:
				counts.Matching++
				appendSample(&samples.Matching, entry.Path)
			default:
				counts.FileConflict++
				appendSample(&samples.FileConflict, entry.Path)
			}
		case manifest.KindTombstone:
			delete(remaining, entry.Path)

			if haveLocal {
				counts.TombstoneConflict++
				appendSample(&samples.TombstoneConflict, entry.Path)
			}
		}
	}

	counts.LocalOnly = len(remaining)
	for p := range remaining {
		appendSample(&samples.LocalOnly, p)
	}
	sort.Strings(samples.LocalOnly)

	impact := map[config.StartupConflictPolicy]PolicyImpact{
		config.PolicyRemoteWins: impactForPolicy(counts, config.PolicyRemoteWins),
		config.PolicyLocalWins:  impactForPolicy(counts, config.PolicyLocalWins),
		config.PolicyKeepBoth:   impactForPolicy(counts, config.PolicyKeepBoth),
	}

	logger.Info("join preview complete",
		"remote_only", counts.RemoteOnly,
		"matching", counts.Matching,
		"file_conflict", counts.FileConflict,
		"tombstone_conflict", counts.TombstoneConflict,
		"local_only", counts.LocalOnly,
	)

	return &Result{
		Counts:  counts,
		Samples: samples,
		Impact:  impact,
		Session: &PreparedSession{Log: log, LocalRoot: localRoot, LocalHash: localHash},
	}, nil
}

// Pair exchanges inviteCode for an attached Log and immediately runs Run
// against it — the common case of previewing a group a user has not yet
// joined.
func Pair(ctx context.Context, bootstrap manifestlog.Log, inviteCode, localRoot string, logger *slog.Logger) (*Result, error) {
	attached, err := bootstrap.Pair(ctx, inviteCode)
	if err != nil {
		return nil, fmt.Errorf("joinpreview: pairing: %w", err)
	}

	return Run(ctx, attached, localRoot, logger)
}

func appendSample(dst *[]string, path string) {
	if len(*dst) < maxSamples {
		*dst = append(*dst, path)
	}
}

// localFile is one discovered file awaiting a content hash.
type localFile struct {
	absPath      string
	manifestPath string
}

// hashLocalDirectory walks root, skipping the engine's own metadata
// directory, then hashes the discovered files with bounded concurrency
// (the walk itself is inherently sequential; the hashing is not).
func hashLocalDirectory(root string) (map[string]string, error) {
	files, err := discoverFiles(root)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(files))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(hashWorkers)

	for _, f := range files {
		f := f
		g.Go(func() error {
			hash, _, err := contenthash.SumFile(f.absPath)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}

				return err
			}

			mu.Lock()
			result[f.manifestPath] = hash
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// discoverFiles walks root and returns every regular file not under the
// engine's metadata directory, paired with its canonical manifest path.
func discoverFiles(root string) ([]localFile, error) {
	var files []localFile

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel == metaDirName || strings.HasPrefix(rel, metaDirName+string(filepath.Separator)) {
				return filepath.SkipDir
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

		files = append(files, localFile{absPath: p, manifestPath: manifestPath})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
