//go:build integration

package eventlog

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// setupPostgresLog opens a connection to the dwn_event_log table named by
// DATABASE_URL (see migrations/000002_create_dwn_event_log.up.sql) and
// clears it, grounded on the teacher's internal/indexer setupTestDB
// convention.
func setupPostgresLog(t *testing.T) (*PostgresLog, func()) {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	_, err = db.Exec(`DELETE FROM dwn_event_log`)
	require.NoError(t, err)

	log := NewPostgresLog(db, nil)
	return log, func() {
		_, _ = db.Exec(`DELETE FROM dwn_event_log`)
		db.Close()
	}
}

func TestPostgresLog_AppendAndGetEventsInOrder(t *testing.T) {
	log, cleanup := setupPostgresLog(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "did:example:alice", "cid1", "record1", map[string]any{"n": float64(1)}))
	require.NoError(t, log.Append(ctx, "did:example:alice", "cid2", "record1", map[string]any{"n": float64(2)}))
	require.NoError(t, log.Append(ctx, "did:example:bob", "cid3", "record2", map[string]any{"n": float64(3)}))

	events, next, err := log.GetEvents(ctx, "did:example:alice", "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "cid1", events[0].MessageCID)
	assert.Equal(t, "cid2", events[1].MessageCID)
	assert.NotEmpty(t, next)
}

func TestPostgresLog_GetEventsAfterCursorExcludesSeen(t *testing.T) {
	log, cleanup := setupPostgresLog(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "did:example:alice", "cid1", "record1", nil))
	require.NoError(t, log.Append(ctx, "did:example:alice", "cid2", "record1", nil))

	first, cursor, err := log.GetEvents(ctx, "did:example:alice", "")
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, next, err := log.GetEvents(ctx, "did:example:alice", cursor)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Empty(t, next)
}

func TestPostgresLog_DeleteEventsByCID(t *testing.T) {
	log, cleanup := setupPostgresLog(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "did:example:alice", "cid1", "record1", nil))
	require.NoError(t, log.Append(ctx, "did:example:alice", "cid2", "record1", nil))
	require.NoError(t, log.DeleteEventsByCID(ctx, "did:example:alice", []string{"cid1"}))

	events, _, err := log.GetEvents(ctx, "did:example:alice", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "cid2", events[0].MessageCID)
}
