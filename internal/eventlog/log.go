// Package eventlog implements the EventLog component of spec §4.5: an
// append-only, per-tenant record of committed messages, retained per
// recordId as "initial write + latest state" rather than every historical
// entry.
package eventlog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a cursor or lookup names an event that
// does not exist.
var ErrNotFound = errors.New("eventlog: event not found")

// Event is one committed message's log entry.
type Event struct {
	Tenant     string
	MessageCID string
	RecordID   string
	Indexes    map[string]any
	CreatedAt  time.Time
}

// Log is the EventLog contract of spec §4.5.
type Log interface {
	// Append records a committed message's event. The log assigns the
	// event its position, which GetEvents cursors over.
	Append(ctx context.Context, tenant, messageCID, recordID string, indexes map[string]any) error

	// GetEvents returns events for tenant strictly after cursor (empty
	// cursor means from the start), in append order, plus a cursor for
	// the next call.
	GetEvents(ctx context.Context, tenant, cursor string) ([]*Event, string, error)

	// DeleteEventsByCID removes events for the given messageCids,
	// used by the reconciler to prune superseded writes.
	DeleteEventsByCID(ctx context.Context, tenant string, messageCIDs []string) error
}
