// Package reconcile implements the record reconciler of spec §4.6:
// enforcement of a single latest write per recordId, immutable-field
// checks against the initial write, and delete/revival semantics.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/dwnd/internal/datastore"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/eventlog"
	"github.com/onnwee/dwnd/internal/messagestore"
)

var (
	// ErrInitialWriteRequired is returned when the first write observed
	// for a recordId is not itself the initial write (dateCreated !=
	// messageTimestamp).
	ErrInitialWriteRequired = errors.New("reconcile: first write for a record must be its initial write")

	// ErrImmutablePropertyChanged is returned when a write changes a
	// field that must stay fixed across a record's lifetime.
	ErrImmutablePropertyChanged = errors.New("reconcile: modifying write changes an immutable property")

	// ErrConflict is returned when the incoming message does not sort
	// strictly after the current latest state.
	ErrConflict = errors.New("reconcile: message does not supersede current latest state")

	// ErrRecordNotFound is returned when a delete targets a recordId with
	// no existing state.
	ErrRecordNotFound = errors.New("reconcile: no existing state for record")

	// ErrRevivalAuthorMismatch is returned when a write attempts to
	// revive a deleted record under a different author than the
	// original.
	ErrRevivalAuthorMismatch = errors.New("reconcile: only the original author may revive a deleted record")
)

// Reconciler applies spec §4.6's ordering and immutability rules, and
// prunes superseded state from MessageStore, DataStore and EventLog.
type Reconciler struct {
	MessageStore messagestore.Store
	DataStore    datastore.Store
	EventLog     eventlog.Log
}

// Decision is what the reconciler concluded about an incoming message.
type Decision struct {
	// IsInitialWrite is true when the incoming write is the first
	// message ever seen for its recordId.
	IsInitialWrite bool

	// PrunedMessageCIDs are the CIDs of messages removed from
	// MessageStore/EventLog because this message superseded them.
	PrunedMessageCIDs []string
}

type recordState struct {
	initial *messagestore.StoredMessage
	latest  *messagestore.StoredMessage // equal to initial when the record has never been modified
}

// Reconcile decides whether msg (already known to be for recordID) may
// become the new latest state for tenant, and if so prunes the superseded
// prior state. The caller is responsible for persisting msg itself
// (MessageStore.Put + EventLog.Append) after Reconcile succeeds.
func (r *Reconciler) Reconcile(ctx context.Context, tenant, recordID string, msg *dwnmodel.Message) (*Decision, error) {
	state, err := r.loadRecordState(ctx, tenant, recordID)
	if err != nil {
		return nil, err
	}

	if writeDesc, ok := msg.IsRecordsWrite(); ok {
		return r.reconcileWrite(ctx, tenant, writeDesc, msg, state)
	}
	if _, ok := msg.IsRecordsDelete(); ok {
		return r.reconcileDelete(ctx, tenant, msg, state)
	}
	if revokeDesc, ok := msg.IsPermissionsRevoke(); ok {
		return r.reconcileRevoke(ctx, tenant, revokeDesc, msg, state)
	}
	return nil, fmt.Errorf("reconcile: message is neither a RecordsWrite, a RecordsDelete, nor a PermissionsRevoke")
}

func (r *Reconciler) loadRecordState(ctx context.Context, tenant, recordID string) (*recordState, error) {
	filters := []dwnmodel.FilterSet{{IndexRecordID: dwnmodel.ClauseValue{Equals: recordID}}}
	existing, _, err := r.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("reconcile: load existing state: %w", err)
	}
	if len(existing) == 0 {
		return &recordState{}, nil
	}

	state := &recordState{}
	for _, sm := range existing {
		if isTruthy(sm.Indexes[IndexIsInitialWrite]) {
			state.initial = sm
		} else {
			state.latest = sm
		}
	}
	if state.initial == nil {
		return nil, fmt.Errorf("reconcile: existing record state for %s has no initial write", recordID)
	}
	if state.latest == nil {
		state.latest = state.initial
	}
	return state, nil
}

func (r *Reconciler) reconcileWrite(ctx context.Context, tenant string, desc *dwnmodel.RecordsWriteDescriptor, msg *dwnmodel.Message, state *recordState) (*Decision, error) {
	if state.initial == nil {
		if !desc.IsInitialWrite() {
			return nil, ErrInitialWriteRequired
		}
		return &Decision{IsInitialWrite: true}, nil
	}

	if err := checkImmutableFields(desc, state.initial); err != nil {
		return nil, err
	}

	latestWasDelete := isTruthy(state.latest.Indexes[IndexIsDelete])
	if latestWasDelete {
		originalAuthor, _ := state.initial.Indexes[IndexAuthor].(string)
		if msg.Author != originalAuthor {
			if precedesOrEquals(msg.Descriptor.Timestamp(), msg.MessageCID, state.latest) {
				return nil, ErrConflict
			}
			return nil, ErrRevivalAuthorMismatch
		}
	}

	if precedesOrEquals(desc.MessageTimestamp, msg.MessageCID, state.latest) {
		return nil, ErrConflict
	}

	pruned, err := r.prunePriorLatest(ctx, tenant, state)
	if err != nil {
		return nil, err
	}
	return &Decision{IsInitialWrite: false, PrunedMessageCIDs: pruned}, nil
}

func (r *Reconciler) reconcileDelete(ctx context.Context, tenant string, msg *dwnmodel.Message, state *recordState) (*Decision, error) {
	if state.initial == nil {
		return nil, ErrRecordNotFound
	}

	if precedesOrEquals(msg.Descriptor.Timestamp(), msg.MessageCID, state.latest) {
		return nil, ErrConflict
	}

	pruned, err := r.prunePriorLatest(ctx, tenant, state)
	if err != nil {
		return nil, err
	}
	return &Decision{IsInitialWrite: false, PrunedMessageCIDs: pruned}, nil
}

// reconcileRevoke applies the single-latest rule to a PermissionsRevoke,
// keyed under its own recordId (spec §4.6's supplement). A revoke has no
// immutable fields to check against a prior revoke of the same grant, and
// unlike a delete it is its own "initial write" when no prior state exists.
func (r *Reconciler) reconcileRevoke(ctx context.Context, tenant string, desc *dwnmodel.PermissionsRevokeDescriptor, msg *dwnmodel.Message, state *recordState) (*Decision, error) {
	if state.initial == nil {
		return &Decision{IsInitialWrite: true}, nil
	}

	if precedesOrEquals(desc.MessageTimestamp, msg.MessageCID, state.latest) {
		return nil, ErrConflict
	}

	pruned, err := r.prunePriorLatest(ctx, tenant, state)
	if err != nil {
		return nil, err
	}
	return &Decision{IsInitialWrite: false, PrunedMessageCIDs: pruned}, nil
}

// prunePriorLatest removes state.latest from MessageStore/EventLog/DataStore
// when it differs from the initial write (the initial write is always
// retained per spec §4.5's "keep initial + latest" retention policy).
func (r *Reconciler) prunePriorLatest(ctx context.Context, tenant string, state *recordState) ([]string, error) {
	if state.latest == state.initial || state.latest.MessageCID == state.initial.MessageCID {
		return nil, nil
	}

	recordID, _ := state.latest.Indexes[IndexRecordID].(string)
	if dataCID, ok := state.latest.Indexes[IndexDataCID].(string); ok && dataCID != "" {
		if err := r.DataStore.Delete(ctx, tenant, recordID, dataCID); err != nil {
			return nil, fmt.Errorf("reconcile: dereference pruned data blob: %w", err)
		}
	}
	if err := r.MessageStore.Delete(ctx, tenant, state.latest.MessageCID); err != nil {
		return nil, fmt.Errorf("reconcile: prune message store entry: %w", err)
	}
	if err := r.EventLog.DeleteEventsByCID(ctx, tenant, []string{state.latest.MessageCID}); err != nil {
		return nil, fmt.Errorf("reconcile: prune event log entry: %w", err)
	}
	return []string{state.latest.MessageCID}, nil
}

// checkImmutableFields enforces spec §4.6: a modifying write may not
// change the fields fixed at the initial write.
func checkImmutableFields(desc *dwnmodel.RecordsWriteDescriptor, initial *messagestore.StoredMessage) error {
	checks := []struct {
		name     string
		incoming any
		stored   any
	}{
		{"dateCreated", desc.DateCreated, initial.Indexes[IndexDateCreated]},
		{"schema", desc.Schema, initial.Indexes[IndexSchema]},
		{"dataFormat", desc.DataFormat, initial.Indexes[IndexDataFormat]},
		{"protocol", desc.Protocol, initial.Indexes[IndexProtocol]},
		{"protocolPath", desc.ProtocolPath, initial.Indexes[IndexProtocolPath]},
		{"recipient", desc.Recipient, initial.Indexes[IndexRecipient]},
		{"parentId", desc.ParentID, initial.Indexes[IndexParentID]},
	}
	for _, c := range checks {
		if !valuesMatch(c.incoming, c.stored) {
			return fmt.Errorf("%w: %s", ErrImmutablePropertyChanged, c.name)
		}
	}
	return nil
}

func valuesMatch(incoming, stored any) bool {
	if t, ok := incoming.(time.Time); ok {
		storedTime, err := asTime(stored)
		if err != nil {
			return false
		}
		return t.Equal(storedTime)
	}
	if stored == nil {
		// An absent index property is an unset field.
		stored = ""
	}
	incomingStr := fmt.Sprintf("%v", incoming)
	storedStr := fmt.Sprintf("%v", stored)
	return incomingStr == storedStr
}

// precedesOrEquals reports whether (timestamp, messageCID) does not sort
// strictly after latest's (messageTimestamp, messageCid), spec §4.6's
// "A ≺ B iff A.messageTimestamp < B.messageTimestamp, or timestamps equal
// and messageCid(A) < messageCid(B) lexicographically".
func precedesOrEquals(timestamp time.Time, messageCID string, latest *messagestore.StoredMessage) bool {
	latestTimestamp, err := asTime(latest.Indexes[IndexMessageTimestamp])
	if err != nil {
		return true
	}
	if timestamp.Before(latestTimestamp) {
		return true
	}
	if timestamp.After(latestTimestamp) {
		return false
	}
	return messageCID <= latest.MessageCID
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, err := dwnmodel.ParseTimestamp(t); err == nil {
			return parsed, nil
		}
		return time.Parse(time.RFC3339Nano, t)
	default:
		return time.Time{}, fmt.Errorf("reconcile: unsupported timestamp index value %T", v)
	}
}

func isTruthy(v any) bool {
	b, _ := v.(bool)
	return b
}
