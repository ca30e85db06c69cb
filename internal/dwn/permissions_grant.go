package dwn

import (
	"context"
	"fmt"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/grant"
)

// PermissionsGrant issues a new grant, spec §3/§4.8. Only the tenant
// itself may grant access to its own DWN; a grant is stored keyed by its
// own recordId rather than its MessageCID, mirroring grant.Loader.Load's
// direct Get(ctx, tenant, grantID) lookup.
func (h *Handlers) PermissionsGrant(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.Descriptor.(*dwnmodel.PermissionsGrantDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a PermissionsGrant descriptor"))
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err)
	}
	if _, err := h.verifySignatures(ctx, msg); err != nil {
		return errorReply(err)
	}
	if msg.Author != tenant {
		return errorReply(dwnerr.New(dwnerr.Unauthorized, "only the tenant may grant its own permissions"))
	}
	if d.GrantedBy != tenant {
		return errorReply(dwnerr.New(dwnerr.Unauthorized, "grantedBy must be the tenant"))
	}
	if d.RecordID == "" {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "grant is missing a recordId"))
	}

	unlock := h.lockTenant(tenant)
	defer unlock()

	encoded, err := codec.EncodeCanonical(map[string]any{
		"descriptor":    msg.Descriptor,
		"authorization": msg.Authorization,
	})
	if err != nil {
		return errorReply(fmt.Errorf("dwn: encoding message: %w", err))
	}

	indexes := map[string]any{
		IndexInterface:         dwnmodel.InterfacePermissions,
		IndexMethod:            dwnmodel.MethodGrant,
		grant.IndexGrantID:     d.RecordID,
		grant.IndexGrantedBy:   d.GrantedBy,
		grant.IndexGrantedTo:   d.GrantedTo,
		grant.IndexGrantedFor:  d.GrantedFor,
		grant.IndexDateExpires: d.DateExpires,
		grant.IndexScope:       d.Scope,
		grant.IndexConditions:  d.Conditions,
	}
	if err := h.deps.MessageStore.Put(ctx, tenant, d.RecordID, encoded, indexes); err != nil {
		return errorReply(fmt.Errorf("dwn: persisting grant: %w", err))
	}
	if err := h.deps.EventLog.Append(ctx, tenant, msg.MessageCID, d.RecordID, indexes); err != nil {
		return errorReply(fmt.Errorf("dwn: appending event: %w", err))
	}

	return &Reply{Status: Status{Code: 202}, Record: &RecordEntry{
		Descriptor: d,
		RecordID:   d.RecordID,
		MessageCID: msg.MessageCID,
	}}
}
