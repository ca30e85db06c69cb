package dwn

import (
	"context"
	"fmt"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/eventstream"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// RecordsDelete runs the delete pipeline of spec §4.9. A delete's
// descriptor carries no payload of its own; VERIFY_INTEGRITY_CIDS for it
// is just the recordId check already folded into verifyIntegrity.
func (h *Handlers) RecordsDelete(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.IsRecordsDelete()
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a RecordsDelete descriptor"))
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err)
	}
	payload, err := h.verifySignatures(ctx, msg)
	if err != nil {
		return errorReply(err)
	}
	if err := h.verifyIntegrity(ctx, tenant, msg, payload); err != nil {
		return errorReply(err)
	}

	target, err := h.loadLatestRecord(ctx, tenant, d.RecordID)
	if err != nil {
		return errorReply(err)
	}
	if err := h.authorizeDelete(ctx, tenant, msg, payload, target); err != nil {
		return errorReply(err)
	}

	unlock := h.lockTenant(tenant)
	defer unlock()

	if _, err := h.reconciler.Reconcile(ctx, tenant, d.RecordID, msg); err != nil {
		return errorReply(err)
	}
	if err := h.persistDelete(ctx, tenant, d, msg); err != nil {
		return errorReply(err)
	}

	if h.deps.EventStream != nil {
		h.deps.EventStream.Publish(tenant, eventstream.Notification{
			Tenant:     tenant,
			MessageCID: msg.MessageCID,
			RecordID:   d.RecordID,
			Indexes:    deleteIndexes(d, msg),
		})
	}

	return &Reply{Status: Status{Code: 202}}
}

func (h *Handlers) authorizeDelete(ctx context.Context, tenant string, msg *dwnmodel.Message, payload *dwnmodel.AuthorizationPayload, target *messagestore.StoredMessage) error {
	if msg.Author == tenant {
		return nil
	}

	protocolName := asString(target.Indexes[reconcile.IndexProtocol])
	if protocolName != "" {
		err := h.evaluateProtocolRule(ctx, tenant, protocolName,
			asString(target.Indexes[reconcile.IndexProtocolPath]),
			asString(target.Indexes[reconcile.IndexContextID]),
			asString(target.Indexes[reconcile.IndexSchema]),
			asString(target.Indexes[reconcile.IndexDataFormat]),
			dwnmodel.CanDelete, msg.Author)
		if err == nil {
			return nil
		}
	}

	if payload.PermissionsGrantID != "" {
		return h.authorizeViaGrant(ctx, tenant, msg.Author, payload.PermissionsGrantID,
			dwnmodel.InterfaceRecords, dwnmodel.MethodDelete, recordTargetScope(target), "", nil)
	}

	return dwnerr.New(dwnerr.Unauthorized, "not authorized to delete this record")
}

func deleteIndexes(d *dwnmodel.RecordsDeleteDescriptor, msg *dwnmodel.Message) map[string]any {
	return map[string]any{
		IndexInterface:                  dwnmodel.InterfaceRecords,
		IndexMethod:                     dwnmodel.MethodDelete,
		reconcile.IndexRecordID:         d.RecordID,
		reconcile.IndexMessageTimestamp: d.MessageTimestamp,
		reconcile.IndexIsInitialWrite:   false,
		reconcile.IndexIsDelete:         true,
		reconcile.IndexAuthor:           msg.Author,
		IndexDescriptor:                 d,
	}
}

func (h *Handlers) persistDelete(ctx context.Context, tenant string, d *dwnmodel.RecordsDeleteDescriptor, msg *dwnmodel.Message) error {
	encoded, err := codec.EncodeCanonical(map[string]any{
		"descriptor":    msg.Descriptor,
		"authorization": msg.Authorization,
	})
	if err != nil {
		return fmt.Errorf("dwn: encoding message: %w", err)
	}

	indexes := deleteIndexes(d, msg)
	if err := h.deps.MessageStore.Put(ctx, tenant, msg.MessageCID, encoded, indexes); err != nil {
		return fmt.Errorf("dwn: persisting message: %w", err)
	}
	if err := h.deps.EventLog.Append(ctx, tenant, msg.MessageCID, d.RecordID, indexes); err != nil {
		return fmt.Errorf("dwn: appending event: %w", err)
	}
	return nil
}
