package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLog_AppendAndGetEvents(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLog()
	tenant := "did:example:alice"

	require.NoError(t, l.Append(ctx, tenant, "cid1", "record1", map[string]any{"schema": "note"}))
	require.NoError(t, l.Append(ctx, tenant, "cid2", "record1", map[string]any{"schema": "note"}))

	events, cursor, err := l.GetEvents(ctx, tenant, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "cid1", events[0].MessageCID)
	assert.Equal(t, "cid2", events[1].MessageCID)
	assert.NotEmpty(t, cursor)

	more, nextCursor, err := l.GetEvents(ctx, tenant, cursor)
	require.NoError(t, err)
	assert.Empty(t, more)
	assert.Empty(t, nextCursor)
}

func TestInMemoryLog_GetEventsRejectsBadCursor(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLog()

	_, _, err := l.GetEvents(ctx, "did:example:alice", "not-a-sequence")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryLog_DeleteEventsByCIDPrunes(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLog()
	tenant := "did:example:alice"

	require.NoError(t, l.Append(ctx, tenant, "cid1", "record1", map[string]any{"schema": "note"}))
	require.NoError(t, l.Append(ctx, tenant, "cid2", "record1", map[string]any{"schema": "note"}))
	require.NoError(t, l.Append(ctx, tenant, "cid3", "record1", map[string]any{"schema": "note"}))

	require.NoError(t, l.DeleteEventsByCID(ctx, tenant, []string{"cid2"}))

	events, _, err := l.GetEvents(ctx, tenant, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "cid1", events[0].MessageCID)
	assert.Equal(t, "cid3", events[1].MessageCID)
}

func TestInMemoryLog_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLog()

	require.NoError(t, l.Append(ctx, "did:example:alice", "cid1", "record1", map[string]any{"schema": "note"}))
	require.NoError(t, l.Append(ctx, "did:example:bob", "cid1", "record1", map[string]any{"schema": "note"}))

	aliceEvents, _, err := l.GetEvents(ctx, "did:example:alice", "")
	require.NoError(t, err)
	assert.Len(t, aliceEvents, 1)
}

func TestPruneSuperseded(t *testing.T) {
	assert.Nil(t, PruneSuperseded(nil))
	assert.Nil(t, PruneSuperseded([]string{"a"}))
	assert.Nil(t, PruneSuperseded([]string{"a", "b"}))
	assert.Equal(t, []string{"b", "c"}, PruneSuperseded([]string{"a", "b", "c", "d"}))
}
