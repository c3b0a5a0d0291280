package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFile() *FileMetadata {
	return &FileMetadata{
		Size:      11,
		Mtime:     1000,
		Hash:      strings.Repeat("a", 64),
		Seq:       1,
		WriterKey: "deadbeef",
		Blocks:    Block{Offset: 0, Length: 1},
	}
}

func TestValidate_File_OK(t *testing.T) {
	v := Value{Kind: KindFile, File: validFile()}
	require.NoError(t, Validate("/a.txt", v))
}

func TestValidate_File_WrongPathKind(t *testing.T) {
	v := Value{Kind: KindFile, File: validFile()}
	err := Validate("__config", v)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_File_BadHashLength(t *testing.T) {
	f := validFile()
	f.Hash = "short"
	err := Validate("/a.txt", Value{Kind: KindFile, File: f})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_File_NegativeSize(t *testing.T) {
	f := validFile()
	f.Size = -1
	err := Validate("/a.txt", Value{Kind: KindFile, File: f})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_File_SeqBelowOne(t *testing.T) {
	f := validFile()
	f.Seq = 0
	err := Validate("/a.txt", Value{Kind: KindFile, File: f})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_Tombstone_OK(t *testing.T) {
	v := Value{Kind: KindTombstone, Tombstone: &Tombstone{Deleted: true, Seq: 1, WriterKey: "w1"}}
	require.NoError(t, Validate("/a.txt", v))
}

func TestValidate_Tombstone_MustBeDeletedTrue(t *testing.T) {
	v := Value{Kind: KindTombstone, Tombstone: &Tombstone{Deleted: false, Seq: 1, WriterKey: "w1"}}
	err := Validate("/a.txt", v)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_Peer_OK(t *testing.T) {
	v := Value{Kind: KindPeer, Peer: &PeerMetadata{WriterKey: "abc123", Name: "laptop"}}
	require.NoError(t, Validate("__peer:abc123", v))
}

func TestValidate_Peer_WriterKeyMismatch(t *testing.T) {
	v := Value{Kind: KindPeer, Peer: &PeerMetadata{WriterKey: "other", Name: "laptop"}}
	err := Validate("__peer:abc123", v)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_Peer_WrongPathKind(t *testing.T) {
	v := Value{Kind: KindPeer, Peer: &PeerMetadata{WriterKey: "abc123", Name: "laptop"}}
	err := Validate("/a.txt", v)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_Config_OK(t *testing.T) {
	v := Value{Kind: KindConfig, Config: &ConfigMetadata{PeerName: "laptop"}}
	require.NoError(t, Validate("__config", v))
}

func TestValidate_Config_WrongPathKind(t *testing.T) {
	v := Value{Kind: KindConfig, Config: &ConfigMetadata{PeerName: "laptop"}}
	err := Validate("/a.txt", v)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_UnrecognizedKind(t *testing.T) {
	v := Value{Kind: Kind("bogus")}
	err := Validate("/a.txt", v)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate_KindDeclaredButVariantNil(t *testing.T) {
	v := Value{Kind: KindFile, File: nil}
	err := Validate("/a.txt", v)
	assert.ErrorIs(t, err, ErrSchema)
	assert.True(t, errors.Is(err, ErrSchema))
}

func TestConfigMetadata_StartupConflictPolicy(t *testing.T) {
	c := &ConfigMetadata{Settings: map[string]any{"startupConflictPolicy": "local-wins"}}
	policy, ok := c.StartupConflictPolicy()
	require.True(t, ok)
	assert.Equal(t, "local-wins", policy)

	empty := &ConfigMetadata{}
	_, ok = empty.StartupConflictPolicy()
	assert.False(t, ok)
}
