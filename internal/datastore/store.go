// Package datastore implements the DataStore component of spec §4.4: a
// content-addressed block store for record payload bytes, reference
// counted by (tenant, recordId) association so a block survives only as
// long as at least one record still points at it.
package datastore

import (
	"context"
	"errors"
	"io"
)

// ErrDataCidMismatch is returned when the bytes streamed into Put hash to
// something other than the declared dataCid. The partial block is
// discarded; nothing is persisted.
var ErrDataCidMismatch = errors.New("datastore: streamed bytes do not match declared dataCid")

// ErrNotFound is returned by Get when dataCid has no surviving association
// for the given tenant.
var ErrNotFound = errors.New("datastore: block not found")

// PutResult reports what Put actually consumed.
type PutResult struct {
	DataSize int64
}

// Store is the DataStore contract of spec §4.4.
type Store interface {
	// Put streams r's bytes into the block keyed by dataCid, verifying the
	// hash as it streams. Adds a (tenant, recordId) reference. If a block
	// for dataCid already exists, the stream is still hashed and verified
	// (to catch a caller's wrong declared CID) but the bytes are deduped,
	// not re-stored.
	Put(ctx context.Context, tenant, recordID, dataCID string, r io.Reader) (PutResult, error)

	// Get returns a stream of the block's bytes, or ErrNotFound if no
	// (tenant, recordId) association currently references dataCid.
	Get(ctx context.Context, tenant, recordID, dataCID string) (io.ReadCloser, error)

	// Associate adds a (tenant, recordId) reference to an already-stored
	// block without re-uploading it, used when a write reuses prior bytes.
	Associate(ctx context.Context, tenant, recordID, dataCID string) error

	// Delete removes the (tenant, recordId) reference to dataCid. The
	// underlying block is removed once its last reference is gone.
	Delete(ctx context.Context, tenant, recordID, dataCID string) error
}
