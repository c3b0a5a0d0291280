package manifest

// PutTombstone builds the Tombstone that should replace predecessor at
// path, as published by writerKey at mtimeMillis (spec.md section 4.5).
// predecessor is nil if the path has never held a record. baseHash
// propagates forward: a file's hash becomes the next baseHash; a
// tombstone's baseHash passes through unchanged; an absent predecessor
// yields a nil baseHash.
func PutTombstone(predecessor *Value, writerKey string, mtimeMillis int64) *Tombstone {
	var baseHash *string
	var seq int64 = 1

	if predecessor != nil {
		switch predecessor.Kind {
		case KindFile:
			h := predecessor.File.Hash
			baseHash = &h
			seq = predecessor.File.Seq + 1
		case KindTombstone:
			baseHash = predecessor.Tombstone.BaseHash
			seq = predecessor.Tombstone.Seq + 1
		}
	}

	return &Tombstone{
		Deleted:   true,
		Mtime:     mtimeMillis,
		WriterKey: writerKey,
		BaseHash:  baseHash,
		Seq:       seq,
	}
}

// NextSeq returns the seq a new FileMetadata publish at path should carry,
// given the current predecessor (nil if the path is new).
func NextSeq(predecessor *Value) int64 {
	if predecessor == nil {
		return 1
	}

	switch predecessor.Kind {
	case KindFile:
		return predecessor.File.Seq + 1
	case KindTombstone:
		return predecessor.Tombstone.Seq + 1
	default:
		return 1
	}
}

// BaseHashFor returns the baseHash a new successor record at path should
// carry, given the current predecessor (spec.md section 3, invariant 4).
func BaseHashFor(predecessor *Value) *string {
	if predecessor == nil {
		return nil
	}

	switch predecessor.Kind {
	case KindFile:
		h := predecessor.File.Hash
		return &h
	case KindTombstone:
		return predecessor.Tombstone.BaseHash
	default:
		return nil
	}
}
