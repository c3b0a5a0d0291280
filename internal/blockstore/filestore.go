package blockstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pearsync/pearsync/internal/manifest"
)

// FileStore is a Store backed by one append-only file per writer key,
// addressed by byte offset — the same shape as the value-file layout in
// gholt-valuestore's valuestorefile_GEN_.go (one append-only log per
// store, entries addressed by offset/length), simplified to a single flat
// file per writer with no header, checksum interval, or compaction, since
// this system's BlockStore is a dumb append/read contract and the schema
// and content-hash layers above it already carry integrity checking.
type FileStore struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
	sizes map[string]int64
}

// NewFileStore returns a FileStore rooted at dir, creating it if absent.
// Each writer key's log lives at dir/<writerKey>.blocks.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blockstore: creating %s: %w", dir, err)
	}

	return &FileStore{
		dir:   dir,
		files: make(map[string]*os.File),
		sizes: make(map[string]int64),
	}, nil
}

// Close releases every open writer-key file handle.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var firstErr error
	for key, f := range fs.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("blockstore: closing %s: %w", key, err)
		}
	}

	return firstErr
}

func (fs *FileStore) pathFor(writerKey string) string {
	return filepath.Join(fs.dir, writerKey+".blocks")
}

// openLocked returns the open handle for writerKey, opening (and, if
// needed, creating) it on first use. Caller must hold fs.mu.
func (fs *FileStore) openLocked(writerKey string) (*os.File, error) {
	if f, ok := fs.files[writerKey]; ok {
		return f, nil
	}

	f, err := os.OpenFile(fs.pathFor(writerKey), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockstore: opening %s: %w", writerKey, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockstore: statting %s: %w", writerKey, err)
	}

	fs.files[writerKey] = f
	fs.sizes[writerKey] = info.Size()

	return f, nil
}

// Append writes data to the end of writerKey's log. Appends to the same
// writerKey are serialized by fs.mu, matching the single-writer-at-a-time
// assumption of an append-only log.
func (fs *FileStore) Append(_ context.Context, writerKey string, data []byte) (manifest.Block, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := fs.openLocked(writerKey)
	if err != nil {
		return manifest.Block{}, err
	}

	offset := fs.sizes[writerKey]

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return manifest.Block{}, fmt.Errorf("blockstore: appending to %s: %w", writerKey, err)
	}

	fs.sizes[writerKey] = offset + int64(n)

	return manifest.Block{Offset: offset, Length: int64(n)}, nil
}

// Read returns block.Length bytes starting at block.Offset from
// writerKey's log.
func (fs *FileStore) Read(_ context.Context, writerKey string, block manifest.Block) ([]byte, error) {
	fs.mu.Lock()
	f, err := fs.openLocked(writerKey)
	size := fs.sizes[writerKey]
	fs.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if block.Offset < 0 || block.Length < 0 || block.Offset+block.Length > size {
		return nil, fmt.Errorf("%w: writer %q offset %d length %d exceeds log size %d",
			ErrMissingBlock, writerKey, block.Offset, block.Length, size)
	}

	buf := make([]byte, block.Length)
	if _, err := f.ReadAt(buf, block.Offset); err != nil {
		return nil, fmt.Errorf("blockstore: reading %s: %w", writerKey, err)
	}

	return buf, nil
}
