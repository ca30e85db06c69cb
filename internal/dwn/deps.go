// Package dwn implements the handler state machine of spec §4.9: one
// method per (interface, method) operation, each running
// ENTRY -> PARSE -> VALIDATE_STRUCTURE -> VERIFY_SIGNATURES ->
// VERIFY_INTEGRITY_CIDS -> AUTHORIZE -> (RECONCILE) -> PERSIST -> EMIT ->
// REPLY, short-circuiting on the first stage that errors. Each stage is a
// private method on *Handlers so every operation file reuses the same
// pipeline pieces rather than reimplementing them, the same "handler
// struct holds its dependencies, calls shared private helpers" shape
// internal/api's handler types use with their repository fields.
package dwn

import (
	"io"
	"sync"
	"time"

	"github.com/onnwee/dwnd/internal/datastore"
	"github.com/onnwee/dwnd/internal/envelope"
	"github.com/onnwee/dwnd/internal/eventlog"
	"github.com/onnwee/dwnd/internal/eventstream"
	"github.com/onnwee/dwnd/internal/grant"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// Clock abstracts time.Now so tests can fix "now" for expiry/ordering
// checks without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SchemaValidator validates a RecordsWrite's payload bytes against a
// protocol type's declared schema. JSON-schema validation itself is a
// Non-goal of this core (spec §1); this interface is the seam a host
// wires a real validator into. NoopSchemaValidator is the default.
type SchemaValidator interface {
	Validate(schema string, data []byte) error
}

// NoopSchemaValidator accepts every payload. It is the default
// SchemaValidator: this core never assumes a particular schema dialect,
// matching the Non-goal on JSON-schema validation.
type NoopSchemaValidator struct{}

func (NoopSchemaValidator) Validate(string, []byte) error { return nil }

// Deps are the collaborators every handler needs, injected once at
// construction exactly as internal/api's handler structs hold repository
// fields. Rand is carried for parity with SPEC_FULL's Deps shape (a
// collaborator available to whoever wires a default signer in cmd/dwnd);
// no handler stage consumes entropy itself, since recordId/messageCid
// derivation is deterministic content-addressing, not randomized.
type Deps struct {
	MessageStore    messagestore.Store
	DataStore       datastore.Store
	EventLog        eventlog.Log
	EventStream     *eventstream.Hub
	Resolver        envelope.Resolver
	GrantLoader     *grant.Loader
	SchemaValidator SchemaValidator
	Clock           Clock
	Rand            io.Reader

	// MaxDataSizeInlined is maxDataSizeInlined, spec §6. Handlers keep it
	// but no handler consults it: a RecordsWrite is treated as inline
	// whenever it carries encodedData, whatever its size, and as streamed
	// otherwise.
	MaxDataSizeInlined int
}

// Handlers implements every operation of spec §4.9 over Deps.
type Handlers struct {
	deps Deps

	reconciler *reconcile.Reconciler

	tenantLocksMu sync.Mutex
	tenantLocks   map[string]*sync.Mutex
}

// New builds a Handlers, defaulting Clock, SchemaValidator, and
// MaxDataSizeInlined when the caller leaves them zero.
func New(deps Deps) *Handlers {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.SchemaValidator == nil {
		deps.SchemaValidator = NoopSchemaValidator{}
	}
	if deps.MaxDataSizeInlined <= 0 {
		deps.MaxDataSizeInlined = DefaultMaxDataSizeInlined
	}
	return &Handlers{
		deps: deps,
		reconciler: &reconcile.Reconciler{
			MessageStore: deps.MessageStore,
			DataStore:    deps.DataStore,
			EventLog:     deps.EventLog,
		},
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

// DefaultMaxDataSizeInlined is maxDataSizeInlined's default, spec §6.
const DefaultMaxDataSizeInlined = 30_000

// lockTenant acquires tenant's per-tenant mutex for the duration of
// RECONCILE -> PERSIST -> EMIT, spec §5's "per-tenant serializability of
// writes" contract, and returns the matching unlock func.
func (h *Handlers) lockTenant(tenant string) func() {
	h.tenantLocksMu.Lock()
	l, ok := h.tenantLocks[tenant]
	if !ok {
		l = &sync.Mutex{}
		h.tenantLocks[tenant] = l
	}
	h.tenantLocksMu.Unlock()

	l.Lock()
	return l.Unlock
}
