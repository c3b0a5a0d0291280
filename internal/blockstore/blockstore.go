// Package blockstore defines the BlockStore contract (spec.md section
// 6.2): an append-only, writer-keyed content log the SyncEngine appends
// published bytes to and randomly reads remote peers' bytes from. It also
// provides FileStore, a reference implementation backed by one append-only
// file per writer key.
package blockstore

import (
	"context"
	"errors"

	"github.com/pearsync/pearsync/internal/manifest"
)

// BlockSize is the fixed block size shared with internal/contenthash.
const BlockSize = 64 * 1024

// ErrMissingBlock is returned when a read addresses bytes past the end of
// a writer's log, or a writer key that has never appended (spec.md section
// 7, MissingBlockError).
var ErrMissingBlock = errors.New("blockstore: missing block")

// Store is the append-only, writer-keyed content log the engine consumes.
type Store interface {
	// Append writes data to the end of writerKey's log and returns the
	// contiguous range it now occupies. Appends to the same writerKey from
	// a single process are serialized by the implementation.
	Append(ctx context.Context, writerKey string, data []byte) (manifest.Block, error)

	// Read returns the block.Length bytes at block.Offset in writerKey's
	// log. A request extending past the log's current length is
	// ErrMissingBlock.
	Read(ctx context.Context, writerKey string, block manifest.Block) ([]byte, error)
}
