package messagestore

import (
	"context"
	"errors"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// ErrIndexMissingRequiredProperty is returned by Put when indexes is empty
// and no sort property can be derived, spec §4.3.
var ErrIndexMissingRequiredProperty = errors.New("messagestore: put requires at least one indexed property")

// ErrNotFound is returned by Get when no message exists for the given CID.
var ErrNotFound = errors.New("messagestore: message not found")

// StoredMessage is a message as persisted: its CBOR-encoded bytes plus the
// indexed properties it was stored with.
type StoredMessage struct {
	Tenant     string
	MessageCID string
	Encoded    []byte
	Indexes    map[string]any
}

// QueryOptions controls sort/cursor/limit behavior, spec §4.3.
type QueryOptions struct {
	Sort   *dwnmodel.QuerySort
	Cursor string
	Limit  int
}

// Store is the MessageStore contract of spec §4.3.
type Store interface {
	// Put persists message keyed by its messageCid, recording indexes for
	// later querying. Returns ErrIndexMissingRequiredProperty if indexes
	// is empty.
	Put(ctx context.Context, tenant, messageCID string, encoded []byte, indexes map[string]any) error

	// Get retrieves a stored message by CID. Returns ErrNotFound if absent.
	Get(ctx context.Context, tenant, messageCID string) (*StoredMessage, error)

	// Query runs the filter/sort/cursor algorithm of spec §4.3 and returns
	// a page of matching messages plus a cursor for the next page (empty
	// if this was the last page).
	Query(ctx context.Context, tenant string, filters []dwnmodel.FilterSet, opts QueryOptions) ([]*StoredMessage, string, error)

	// Delete removes a message and all of its index entries.
	Delete(ctx context.Context, tenant, messageCID string) error

	// Clear removes all stored state. Test-only.
	Clear(ctx context.Context) error
}
