package grant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
)

// DefaultRevocationLookupBatchSize is grantRevocationLookupBatchSize's
// default, spec §6.
const DefaultRevocationLookupBatchSize = 64

// Loader loads a PermissionsGrant and checks for its revocation, backed by
// MessageStore per spec §4.8 steps 1 and 3. An optional RevocationCache
// sits in front of the revocation lookup.
type Loader struct {
	MessageStore messagestore.Store
	Cache        RevocationCache

	// BatchSize is grantRevocationLookupBatchSize; defaults to
	// DefaultRevocationLookupBatchSize if <= 0.
	BatchSize int
}

// Load fetches the grant named grantID for tenant and decodes it into a
// Record, spec §4.8 step 1. Returns ErrGrantNotFound if absent.
func (l *Loader) Load(ctx context.Context, tenant, grantID string) (*Record, error) {
	stored, err := l.MessageStore.Get(ctx, tenant, grantID)
	if err != nil {
		if errors.Is(err, messagestore.ErrNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("grant: loading %s: %w", grantID, err)
	}

	rec := &Record{GrantID: grantID}
	if v, ok := stored.Indexes[IndexGrantedBy]; ok {
		rec.GrantedBy = asString(v)
	}
	if v, ok := stored.Indexes[IndexGrantedTo]; ok {
		rec.GrantedTo = asString(v)
	}
	if v, ok := stored.Indexes[IndexGrantedFor]; ok {
		rec.GrantedFor = asString(v)
	}
	if v, ok := stored.Indexes[IndexDateExpires]; ok {
		t, err := asTime(v)
		if err != nil {
			return nil, fmt.Errorf("grant: decoding dateExpires for %s: %w", grantID, err)
		}
		rec.DateExpires = t
	}
	if v, ok := stored.Indexes[IndexScope]; ok {
		if err := reshape(v, &rec.Scope); err != nil {
			return nil, fmt.Errorf("grant: decoding scope for %s: %w", grantID, err)
		}
	}
	if v, ok := stored.Indexes[IndexConditions]; ok {
		if err := reshape(v, &rec.Conditions); err != nil {
			return nil, fmt.Errorf("grant: decoding conditions for %s: %w", grantID, err)
		}
	}
	return rec, nil
}

// CheckRevoked reports whether a PermissionsRevoke exists for grantID,
// spec §4.8 step 3. It consults Cache first, then pages through
// MessageStore in BatchSize-sized queries filtered on
// IndexRevokedGrantID, per SPEC_FULL §4.8.
func (l *Loader) CheckRevoked(ctx context.Context, tenant, grantID string) (bool, error) {
	if l.Cache != nil {
		if revoked, found := l.Cache.Get(ctx, tenant, grantID); found {
			return revoked, nil
		}
	}

	revoked, err := l.queryRevoked(ctx, tenant, grantID)
	if err != nil {
		return false, err
	}

	if l.Cache != nil {
		l.Cache.Set(ctx, tenant, grantID, revoked)
	}
	return revoked, nil
}

// InvalidateRevoked marks grantID revoked in Cache immediately, spec
// §4.8's PermissionsRevoke step. Without this, a grantee checked moments
// before the revoke would have a cached "not revoked" result that lives
// out the rest of Cache's TTL, authorizing a grant that no longer holds.
// A no-op when Cache is unset.
func (l *Loader) InvalidateRevoked(ctx context.Context, tenant, grantID string) {
	if l.Cache == nil {
		return
	}
	l.Cache.Set(ctx, tenant, grantID, true)
}

func (l *Loader) queryRevoked(ctx context.Context, tenant, grantID string) (bool, error) {
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultRevocationLookupBatchSize
	}

	filters := []dwnmodel.FilterSet{
		{IndexRevokedGrantID: dwnmodel.ClauseValue{Equals: grantID}},
	}

	cursor := ""
	for {
		results, next, err := l.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{
			Cursor: cursor,
			Limit:  batchSize,
		})
		if err != nil {
			return false, fmt.Errorf("grant: checking revocation of %s: %w", grantID, err)
		}
		if len(results) > 0 {
			return true, nil
		}
		if next == "" {
			return false, nil
		}
		cursor = next
	}
}

// reshape converts v (either the concrete Go value an InMemoryStore keeps
// live, or the map[string]any a PostgresStore's JSON round trip produces)
// into out via a JSON marshal/unmarshal round trip, so callers don't care
// which shape the backing store handed back.
func reshape(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asTime tolerates both a live time.Time (InMemoryStore) and its
// wire-format string (PostgresStore's JSON round trip), mirroring
// internal/reconcile's asTime.
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
		return time.Time{}, fmt.Errorf("grant: unsupported timestamp value %T", v)
	}
}
