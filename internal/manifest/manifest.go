// Package manifest defines the sum-typed manifest value (spec.md section
// 3): every record a path in the shared ManifestLog can hold, plus strict
// parse/validate and the tombstone-construction helper.
package manifest

import (
	"errors"
	"fmt"

	"github.com/pearsync/pearsync/internal/pathrules"
)

// ErrSchema is returned when a wire value cannot be parsed, disagrees with
// its path's expected kind, or carries an unrecognized kind string
// (spec.md section 7, SchemaError).
var ErrSchema = errors.New("manifest: schema error")

// Kind identifies which variant of Value is populated.
type Kind string

const (
	KindFile      Kind = "file"
	KindTombstone Kind = "tombstone"
	KindPeer      Kind = "peer"
	KindConfig    Kind = "config"
)

// Block is the contiguous block-store range backing a FileMetadata's bytes.
type Block struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// FileMetadata is a published version of a user file.
type FileMetadata struct {
	Size      int64   `json:"size"`
	Mtime     int64   `json:"mtime"` // ms since epoch
	Hash      string  `json:"hash"`  // 64-hex SHA-256
	BaseHash  *string `json:"baseHash"`
	Seq       int64   `json:"seq"`
	WriterKey string  `json:"writerKey"`
	Blocks    Block   `json:"blocks"`
}

// Tombstone is a published deletion.
type Tombstone struct {
	Deleted   bool    `json:"deleted"`
	Mtime     int64   `json:"mtime"`
	WriterKey string  `json:"writerKey"`
	BaseHash  *string `json:"baseHash"`
	Seq       int64   `json:"seq"`
}

// PeerMetadata is a peer's self-description. Its path must equal
// "__peer:<writerKey>" exactly (enforced by Validate).
type PeerMetadata struct {
	WriterKey string `json:"writerKey"`
	Name      string `json:"name"`
	UpdatedAt int64  `json:"updatedAt"`
}

// ConfigMetadata is the single group-visible configuration record. Its path
// must equal pathrules.ConfigKey exactly.
type ConfigMetadata struct {
	PeerName   string         `json:"peerName,omitempty"`
	SyncFolder string         `json:"syncFolder,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// StartupConflictPolicy reads the recognized "startupConflictPolicy"
// setting, if present.
func (c *ConfigMetadata) StartupConflictPolicy() (string, bool) {
	if c.Settings == nil {
		return "", false
	}

	v, ok := c.Settings["startupConflictPolicy"]
	if !ok {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

// Value is the sum type stored at a manifest path: exactly one of File,
// Tombstone, Peer, or Config is populated, selected by Kind.
type Value struct {
	Kind      Kind
	File      *FileMetadata
	Tombstone *Tombstone
	Peer      *PeerMetadata
	Config    *ConfigMetadata
}

// expectedKindForPath classifies path with pathrules.Classify (spec.md
// section 3, invariant 2), returning its key kind and, for a peer key, the
// embedded writer key. A user-file key admits either KindFile or
// KindTombstone, so the caller checks v.Kind against the key kind.
func expectedKindForPath(path string) (kind pathrules.KeyKind, writerKey string, err error) {
	return pathrules.Classify(path)
}

// Validate checks that v's populated variant matches v.Kind, that exactly
// one variant is non-nil, and that the record is compatible with path
// (spec.md section 3, invariants 1-2; section 7, SchemaError/PolicyViolation).
func Validate(path string, v Value) error {
	keyKind, writerKey, err := expectedKindForPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	switch v.Kind {
	case KindFile:
		if v.File == nil {
			return fmt.Errorf("%w: kind %q declared but File is nil", ErrSchema, v.Kind)
		}
		if keyKind != pathrules.KeyUserFile {
			return fmt.Errorf("%w: %q cannot hold a file record", ErrSchema, path)
		}

		return validateFile(v.File)
	case KindTombstone:
		if v.Tombstone == nil {
			return fmt.Errorf("%w: kind %q declared but Tombstone is nil", ErrSchema, v.Kind)
		}
		if keyKind != pathrules.KeyUserFile {
			return fmt.Errorf("%w: %q cannot hold a tombstone record", ErrSchema, path)
		}

		return validateTombstone(v.Tombstone)
	case KindPeer:
		if v.Peer == nil {
			return fmt.Errorf("%w: kind %q declared but Peer is nil", ErrSchema, v.Kind)
		}
		if keyKind != pathrules.KeyPeer {
			return fmt.Errorf("%w: %q cannot hold a peer record", ErrSchema, path)
		}
		if err := pathrules.ValidatePeerKey(path, v.Peer.WriterKey); err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
		if v.Peer.WriterKey != writerKey {
			return fmt.Errorf("%w: peer record writer key %q does not match path %q", ErrSchema, v.Peer.WriterKey, path)
		}

		return nil
	case KindConfig:
		if v.Config == nil {
			return fmt.Errorf("%w: kind %q declared but Config is nil", ErrSchema, v.Kind)
		}
		if keyKind != pathrules.KeyConfig {
			return fmt.Errorf("%w: %q cannot hold a config record", ErrSchema, path)
		}

		return nil
	default:
		return fmt.Errorf("%w: unrecognized kind %q", ErrSchema, v.Kind)
	}
}

func validateFile(f *FileMetadata) error {
	if f.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrSchema, f.Size)
	}
	if len(f.Hash) != 64 {
		return fmt.Errorf("%w: hash %q is not 64 hex characters", ErrSchema, f.Hash)
	}
	if f.Seq < 1 {
		return fmt.Errorf("%w: seq %d is not ≥ 1", ErrSchema, f.Seq)
	}
	if f.WriterKey == "" {
		return fmt.Errorf("%w: empty writer key", ErrSchema)
	}
	if f.Blocks.Offset < 0 || f.Blocks.Length < 0 {
		return fmt.Errorf("%w: negative block range %+v", ErrSchema, f.Blocks)
	}

	return nil
}

func validateTombstone(t *Tombstone) error {
	if !t.Deleted {
		return fmt.Errorf("%w: tombstone record with deleted=false", ErrSchema)
	}
	if t.Seq < 1 {
		return fmt.Errorf("%w: seq %d is not ≥ 1", ErrSchema, t.Seq)
	}
	if t.WriterKey == "" {
		return fmt.Errorf("%w: empty writer key", ErrSchema)
	}

	return nil
}
