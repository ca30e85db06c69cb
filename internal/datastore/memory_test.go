package datastore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cidOf(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestInMemoryStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	data := []byte("hello dwn")
	cid := cidOf(data)

	res, err := s.Put(ctx, "did:example:alice", "record1", cid, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.DataSize)

	r, err := s.Get(ctx, "did:example:alice", "record1", cid)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestInMemoryStore_PutRejectsMismatchedCid(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	data := []byte("hello dwn")

	_, err := s.Put(ctx, "did:example:alice", "record1", "not-the-real-cid", bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrDataCidMismatch)
}

func TestInMemoryStore_GetRequiresReference(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	data := []byte("hello dwn")
	cid := cidOf(data)

	_, err := s.Put(ctx, "did:example:alice", "record1", cid, bytes.NewReader(data))
	require.NoError(t, err)

	_, err = s.Get(ctx, "did:example:alice", "unrelated-record", cid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_AssociateAddsReferenceWithoutReupload(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	data := []byte("hello dwn")
	cid := cidOf(data)

	_, err := s.Put(ctx, "did:example:alice", "record1", cid, bytes.NewReader(data))
	require.NoError(t, err)

	err = s.Associate(ctx, "did:example:alice", "record2", cid)
	require.NoError(t, err)

	r, err := s.Get(ctx, "did:example:alice", "record2", cid)
	require.NoError(t, err)
	r.Close()
}

func TestInMemoryStore_AssociateUnknownCidFails(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	err := s.Associate(ctx, "did:example:alice", "record1", "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_DeleteRemovesBlockOnLastReference(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	data := []byte("hello dwn")
	cid := cidOf(data)

	_, err := s.Put(ctx, "did:example:alice", "record1", cid, bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, s.Associate(ctx, "did:example:alice", "record2", cid))

	require.NoError(t, s.Delete(ctx, "did:example:alice", "record1", cid))

	// Still referenced by record2.
	r, err := s.Get(ctx, "did:example:alice", "record2", cid)
	require.NoError(t, err)
	r.Close()

	require.NoError(t, s.Delete(ctx, "did:example:alice", "record2", cid))

	_, err = s.Get(ctx, "did:example:alice", "record2", cid)
	assert.ErrorIs(t, err, ErrNotFound)
}
