package grant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
)

func putGrant(t *testing.T, store messagestore.Store, tenant, grantID string, scope dwnmodel.GrantScope, expires time.Time) {
	t.Helper()
	err := store.Put(context.Background(), tenant, grantID, []byte("grant-payload"), map[string]any{
		IndexGrantID:     grantID,
		IndexGrantedBy:   tenant,
		IndexGrantedTo:   "did:example:bob",
		IndexGrantedFor:  tenant,
		IndexDateExpires: dwnmodel.FormatTimestamp(expires),
		IndexScope:       scope,
	})
	require.NoError(t, err)
}

func TestLoader_LoadDecodesIndexedFields(t *testing.T) {
	store := messagestore.NewInMemoryStore()
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	putGrant(t, store, "did:example:alice", "grant-1", dwnmodel.GrantScope{
		Interface: dwnmodel.InterfaceRecords,
		Method:    dwnmodel.MethodWrite,
		Protocol:  "https://example.com/thread",
	}, expires)

	loader := &Loader{MessageStore: store}
	rec, err := loader.Load(context.Background(), "did:example:alice", "grant-1")
	require.NoError(t, err)

	assert.Equal(t, "did:example:alice", rec.GrantedBy)
	assert.Equal(t, "did:example:bob", rec.GrantedTo)
	assert.Equal(t, "did:example:alice", rec.GrantedFor)
	assert.True(t, rec.DateExpires.Equal(expires))
	assert.Equal(t, "https://example.com/thread", rec.Scope.Protocol)
	assert.Equal(t, dwnmodel.MethodWrite, rec.Scope.Method)
}

func TestLoader_LoadMissingGrantFails(t *testing.T) {
	store := messagestore.NewInMemoryStore()
	loader := &Loader{MessageStore: store}

	_, err := loader.Load(context.Background(), "did:example:alice", "no-such-grant")
	assert.ErrorIs(t, err, ErrGrantNotFound)
}

func TestLoader_CheckRevokedFindsMatchingRevocation(t *testing.T) {
	store := messagestore.NewInMemoryStore()
	tenant := "did:example:alice"

	err := store.Put(context.Background(), tenant, "revoke-1", []byte("revoke-payload"), map[string]any{
		IndexRevokedGrantID: "grant-1",
	})
	require.NoError(t, err)

	loader := &Loader{MessageStore: store, BatchSize: 1}
	revoked, err := loader.CheckRevoked(context.Background(), tenant, "grant-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = loader.CheckRevoked(context.Background(), tenant, "grant-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

type fakeCache struct {
	entries map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]bool)}
}

func (c *fakeCache) Get(_ context.Context, tenant, grantID string) (bool, bool) {
	v, ok := c.entries[tenant+"/"+grantID]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, tenant, grantID string, revoked bool) {
	c.entries[tenant+"/"+grantID] = revoked
}

func TestLoader_CheckRevokedUsesCacheBeforeStore(t *testing.T) {
	store := messagestore.NewInMemoryStore()
	cache := newFakeCache()
	cache.entries["did:example:alice/grant-1"] = true

	loader := &Loader{MessageStore: store, Cache: cache}
	revoked, err := loader.CheckRevoked(context.Background(), "did:example:alice", "grant-1")
	require.NoError(t, err)
	assert.True(t, revoked, "cached revocation should short-circuit the store query")
}

func TestLoader_CheckRevokedPopulatesCacheOnMiss(t *testing.T) {
	store := messagestore.NewInMemoryStore()
	cache := newFakeCache()
	loader := &Loader{MessageStore: store, Cache: cache}

	revoked, err := loader.CheckRevoked(context.Background(), "did:example:alice", "grant-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	cached, found := cache.Get(context.Background(), "did:example:alice", "grant-1")
	assert.True(t, found)
	assert.False(t, cached)
}

func TestLoader_InvalidateRevokedFlipsStaleCachedEntry(t *testing.T) {
	store := messagestore.NewInMemoryStore()
	cache := newFakeCache()
	cache.entries["did:example:alice/grant-1"] = false // stale "not revoked" result

	loader := &Loader{MessageStore: store, Cache: cache}
	loader.InvalidateRevoked(context.Background(), "did:example:alice", "grant-1")

	revoked, found := cache.Get(context.Background(), "did:example:alice", "grant-1")
	assert.True(t, found)
	assert.True(t, revoked, "invalidation must flip a cached allow to revoked, never leave it to expire")
}

func TestLoader_InvalidateRevokedWithoutCacheIsNoop(t *testing.T) {
	loader := &Loader{MessageStore: messagestore.NewInMemoryStore()}
	loader.InvalidateRevoked(context.Background(), "did:example:alice", "grant-1") // must not panic
}
