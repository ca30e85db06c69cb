package dwn

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/grant"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// PermissionsRevoke revokes a previously issued grant, spec §4.8 step 3's
// counterpart. Only the grant's own grantor may revoke it; the revocation
// is indexed under grant.IndexRevokedGrantID so grant.Loader.CheckRevoked
// can find it without scanning every message for the tenant. It reconciles
// like any other record (single latest per recordId, keyed off d.RecordID
// or its own messageCid), then marks the grant revoked in grant.Loader's
// Cache so a prior cached "not revoked" result can't outlive the
// revocation.
func (h *Handlers) PermissionsRevoke(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.Descriptor.(*dwnmodel.PermissionsRevokeDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a PermissionsRevoke descriptor"))
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err)
	}
	if _, err := h.verifySignatures(ctx, msg); err != nil {
		return errorReply(err)
	}

	target, err := h.deps.MessageStore.Get(ctx, tenant, d.PermissionsGrantID)
	if err != nil {
		if errors.Is(err, messagestore.ErrNotFound) {
			return errorReply(dwnerr.New(dwnerr.NotFound, "permissions grant not found"))
		}
		return errorReply(fmt.Errorf("dwn: loading grant %s: %w", d.PermissionsGrantID, err))
	}
	grantedBy := asString(target.Indexes[grant.IndexGrantedBy])
	if msg.Author != tenant || grantedBy != tenant {
		return errorReply(dwnerr.New(dwnerr.Unauthorized, "only the grantor may revoke its own grant"))
	}

	unlock := h.lockTenant(tenant)
	defer unlock()

	recordID := d.RecordID
	if recordID == "" {
		recordID = msg.MessageCID
	}

	decision, err := h.reconciler.Reconcile(ctx, tenant, recordID, msg)
	if err != nil {
		return errorReply(err)
	}

	encoded, err := codec.EncodeCanonical(map[string]any{
		"descriptor":    msg.Descriptor,
		"authorization": msg.Authorization,
	})
	if err != nil {
		return errorReply(fmt.Errorf("dwn: encoding message: %w", err))
	}

	indexes := map[string]any{
		IndexInterface:                  dwnmodel.InterfacePermissions,
		IndexMethod:                     dwnmodel.MethodRevoke,
		grant.IndexRevokedGrantID:       d.PermissionsGrantID,
		reconcile.IndexRecordID:         recordID,
		reconcile.IndexMessageTimestamp: d.MessageTimestamp,
		reconcile.IndexIsInitialWrite:   decision.IsInitialWrite,
		reconcile.IndexIsDelete:         false,
		reconcile.IndexAuthor:           msg.Author,
		IndexDescriptor:                 d,
	}
	if err := h.deps.MessageStore.Put(ctx, tenant, msg.MessageCID, encoded, indexes); err != nil {
		return errorReply(fmt.Errorf("dwn: persisting revocation: %w", err))
	}
	if err := h.deps.EventLog.Append(ctx, tenant, msg.MessageCID, recordID, indexes); err != nil {
		return errorReply(fmt.Errorf("dwn: appending event: %w", err))
	}

	if h.deps.GrantLoader != nil {
		h.deps.GrantLoader.InvalidateRevoked(ctx, tenant, d.PermissionsGrantID)
	}

	return &Reply{Status: Status{Code: 202}}
}
