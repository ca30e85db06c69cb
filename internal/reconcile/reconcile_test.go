package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/dwnd/internal/datastore"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/eventlog"
	"github.com/onnwee/dwnd/internal/messagestore"
)

const tenant = "did:example:alice"

func newReconciler() *Reconciler {
	return &Reconciler{
		MessageStore: messagestore.NewInMemoryStore(),
		DataStore:    datastore.NewInMemoryStore(),
		EventLog:     eventlog.NewInMemoryLog(),
	}
}

func writeMessage(recordID, author, cid string, created, timestamp time.Time) *dwnmodel.Message {
	return &dwnmodel.Message{
		Descriptor: &dwnmodel.RecordsWriteDescriptor{
			MessageTimestamp: timestamp,
			RecordID:         recordID,
			DateCreated:      created,
			DataFormat:       "application/json",
			Schema:           "https://example.com/note",
		},
		MessageCID: cid,
		Author:     author,
	}
}

func putIndexed(t *testing.T, store messagestore.Store, recordID, author, cid string, created, timestamp time.Time, isInitial, isDelete bool) {
	t.Helper()
	indexes := map[string]any{
		IndexRecordID:         recordID,
		IndexMessageTimestamp: timestamp,
		IndexDateCreated:      created,
		IndexAuthor:           author,
		IndexSchema:           "https://example.com/note",
		IndexDataFormat:       "application/json",
		IndexIsInitialWrite:   isInitial,
		IndexIsDelete:         isDelete,
	}
	require.NoError(t, store.Put(context.Background(), tenant, cid, nil, indexes))
}

func TestReconcile_FirstWriteMustBeInitial(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	msg := writeMessage("record1", "did:example:alice", "cid1", earlier, now)
	_, err := r.Reconcile(ctx, tenant, "record1", msg)
	assert.ErrorIs(t, err, ErrInitialWriteRequired)
}

func TestReconcile_AcceptsInitialWrite(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()

	msg := writeMessage("record1", "did:example:alice", "cid1", now, now)
	decision, err := r.Reconcile(ctx, tenant, "record1", msg)
	require.NoError(t, err)
	assert.True(t, decision.IsInitialWrite)
	assert.Empty(t, decision.PrunedMessageCIDs)
}

func TestReconcile_ModifyingWriteSupersedesAndRetainsInitial(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.Add(time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)

	msg := writeMessage("record1", "did:example:alice", "cid2", now, later)
	decision, err := r.Reconcile(ctx, tenant, "record1", msg)
	require.NoError(t, err)
	assert.False(t, decision.IsInitialWrite)
	assert.Empty(t, decision.PrunedMessageCIDs, "initial write is retained, not pruned")
}

func TestReconcile_PrunesSupersededNonInitialWrite(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	mid := now.Add(time.Minute)
	later := mid.Add(time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)
	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid2", now, mid, false, false)

	msg := writeMessage("record1", "did:example:alice", "cid3", now, later)
	decision, err := r.Reconcile(ctx, tenant, "record1", msg)
	require.NoError(t, err)
	require.Len(t, decision.PrunedMessageCIDs, 1)
	assert.Equal(t, "cid2", decision.PrunedMessageCIDs[0])
}

func TestReconcile_ConflictOnEarlierTimestamp(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	earlier := now.Add(-time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)

	msg := writeMessage("record1", "did:example:alice", "cid2", now, earlier)
	_, err := r.Reconcile(ctx, tenant, "record1", msg)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReconcile_ConflictOnEqualTimestampLowerCID(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cidZZZ", now, now, true, false)

	msg := writeMessage("record1", "did:example:alice", "cidAAA", now, now)
	_, err := r.Reconcile(ctx, tenant, "record1", msg)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReconcile_ImmutableFieldChangeRejected(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.Add(time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)

	msg := &dwnmodel.Message{
		Descriptor: &dwnmodel.RecordsWriteDescriptor{
			MessageTimestamp: later,
			RecordID:         "record1",
			DateCreated:      now,
			DataFormat:       "application/json",
			Schema:           "https://example.com/DIFFERENT-SCHEMA",
		},
		MessageCID: "cid2",
		Author:     "did:example:alice",
	}
	_, err := r.Reconcile(ctx, tenant, "record1", msg)
	assert.ErrorIs(t, err, ErrImmutablePropertyChanged)
}

func TestReconcile_DeleteBecomesLatestAndPrunesPriorNonInitial(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	mid := now.Add(time.Minute)
	later := mid.Add(time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)
	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid2", now, mid, false, false)

	deleteMsg := &dwnmodel.Message{
		Descriptor: &dwnmodel.RecordsDeleteDescriptor{MessageTimestamp: later, RecordID: "record1"},
		MessageCID: "cid3",
		Author:     "did:example:alice",
	}
	decision, err := r.Reconcile(ctx, tenant, "record1", deleteMsg)
	require.NoError(t, err)
	require.Len(t, decision.PrunedMessageCIDs, 1)
	assert.Equal(t, "cid2", decision.PrunedMessageCIDs[0])
}

func TestReconcile_DeleteOfNonexistentRecordFails(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()

	deleteMsg := &dwnmodel.Message{
		Descriptor: &dwnmodel.RecordsDeleteDescriptor{MessageTimestamp: now, RecordID: "ghost"},
		MessageCID: "cid1",
		Author:     "did:example:alice",
	}
	_, err := r.Reconcile(ctx, tenant, "ghost", deleteMsg)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestReconcile_RevivalRequiresOriginalAuthor(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	mid := now.Add(time.Minute)
	later := mid.Add(time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)
	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid2", now, mid, false, true)

	msg := writeMessage("record1", "did:example:mallory", "cid3", now, later)
	_, err := r.Reconcile(ctx, tenant, "record1", msg)
	assert.ErrorIs(t, err, ErrRevivalAuthorMismatch)
}

func TestReconcile_RevivalByOriginalAuthorSucceeds(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	mid := now.Add(time.Minute)
	later := mid.Add(time.Minute)

	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid1", now, now, true, false)
	putIndexed(t, r.MessageStore, "record1", "did:example:alice", "cid2", now, mid, false, true)

	msg := writeMessage("record1", "did:example:alice", "cid3", now, later)
	decision, err := r.Reconcile(ctx, tenant, "record1", msg)
	require.NoError(t, err)
	assert.False(t, decision.IsInitialWrite)
}

func revokeMessage(recordID, grantID, author, cid string, timestamp time.Time) *dwnmodel.Message {
	return &dwnmodel.Message{
		Descriptor: &dwnmodel.PermissionsRevokeDescriptor{
			MessageTimestamp:   timestamp,
			RecordID:           recordID,
			PermissionsGrantID: grantID,
		},
		MessageCID: cid,
		Author:     author,
	}
}

func TestReconcile_FirstRevokeIsAcceptedAsInitial(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()

	msg := revokeMessage("revoke1", "grant1", "did:example:alice", "cid1", now)
	decision, err := r.Reconcile(ctx, tenant, "revoke1", msg)
	require.NoError(t, err)
	assert.True(t, decision.IsInitialWrite)
	assert.Empty(t, decision.PrunedMessageCIDs)
}

func TestReconcile_SecondRevokeForSameRecordSupersedesAndRetainsInitial(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.Add(time.Minute)

	putIndexed(t, r.MessageStore, "revoke1", "did:example:alice", "cid1", now, now, true, false)

	msg := revokeMessage("revoke1", "grant1", "did:example:alice", "cid2", later)
	decision, err := r.Reconcile(ctx, tenant, "revoke1", msg)
	require.NoError(t, err)
	assert.False(t, decision.IsInitialWrite)
	assert.Empty(t, decision.PrunedMessageCIDs, "initial write is retained, not pruned")
}

func TestReconcile_RevokeConflictOnEarlierTimestamp(t *testing.T) {
	r := newReconciler()
	ctx := context.Background()
	now := time.Now().UTC()
	earlier := now.Add(-time.Minute)

	putIndexed(t, r.MessageStore, "revoke1", "did:example:alice", "cid1", now, now, true, false)

	msg := revokeMessage("revoke1", "grant1", "did:example:alice", "cid2", earlier)
	_, err := r.Reconcile(ctx, tenant, "revoke1", msg)
	assert.ErrorIs(t, err, ErrConflict)
}
