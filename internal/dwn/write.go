package dwn

import (
	"context"
	"fmt"
	"io"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/eventstream"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// RecordsWrite runs the full ENTRY -> ... -> REPLY pipeline of spec §4.9
// for a RecordsWrite. data is the record's payload stream; it is nil when
// the payload is small enough to travel inline in the envelope's
// encodedData (already verified against dataCid by the time this is
// called, since that check happens in VERIFY_INTEGRITY_CIDS before data
// would ever be consulted).
func (h *Handlers) RecordsWrite(ctx context.Context, tenant string, raw []byte, data io.Reader) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.IsRecordsWrite()
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a RecordsWrite descriptor"))
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
	if err := h.authorizeWrite(ctx, tenant, d, msg, payload); err != nil {
		return errorReply(err)
	}

	unlock := h.lockTenant(tenant)
	defer unlock()

	if _, err := h.reconciler.Reconcile(ctx, tenant, d.RecordID, msg); err != nil {
		return errorReply(err)
	}
	if err := h.persistWrite(ctx, tenant, d, msg, data); err != nil {
		return errorReply(err)
	}

	if h.deps.EventStream != nil {
		h.deps.EventStream.Publish(tenant, eventstream.Notification{
			Tenant:     tenant,
			MessageCID: msg.MessageCID,
			RecordID:   d.RecordID,
			Indexes:    writeIndexes(d, msg),
		})
	}

	return &Reply{Status: Status{Code: 202}}
}

// authorizeWrite is the AUTHORIZE stage for RecordsWrite: tenant ownership,
// an installed protocol rule, or a permission grant.
func (h *Handlers) authorizeWrite(ctx context.Context, tenant string, d *dwnmodel.RecordsWriteDescriptor, msg *dwnmodel.Message, payload *dwnmodel.AuthorizationPayload) error {
	if msg.Author == tenant {
		return nil
	}

	if d.Protocol != "" {
		if err := h.evaluateProtocolRule(ctx, tenant, d.Protocol, d.ProtocolPath, d.ContextID, d.Schema, d.DataFormat, dwnmodel.CanWrite, msg.Author); err == nil {
			return nil
		}
	}

	if payload.PermissionsGrantID != "" {
		published := d.Published
		return h.authorizeViaGrant(ctx, tenant, msg.Author, payload.PermissionsGrantID,
			dwnmodel.InterfaceRecords, dwnmodel.MethodWrite, grantTargetFromWrite(d), "", &published)
	}

	return dwnerr.New(dwnerr.Unauthorized, "not authorized to write this record")
}

func writeIndexes(d *dwnmodel.RecordsWriteDescriptor, msg *dwnmodel.Message) map[string]any {
	return map[string]any{
		IndexInterface:                  dwnmodel.InterfaceRecords,
		IndexMethod:                     dwnmodel.MethodWrite,
		reconcile.IndexRecordID:         d.RecordID,
		reconcile.IndexMessageTimestamp: d.MessageTimestamp,
		reconcile.IndexIsInitialWrite:   d.IsInitialWrite(),
		reconcile.IndexIsDelete:         false,
		reconcile.IndexAuthor:           msg.Author,
		reconcile.IndexDateCreated:      d.DateCreated,
		reconcile.IndexSchema:           d.Schema,
		reconcile.IndexDataFormat:       d.DataFormat,
		reconcile.IndexProtocol:         d.Protocol,
		reconcile.IndexProtocolPath:     d.ProtocolPath,
		reconcile.IndexRecipient:        d.Recipient,
		reconcile.IndexParentID:         d.ParentID,
		reconcile.IndexDataCID:          d.DataCID,
		reconcile.IndexContextID:        d.ContextID,
		IndexPublished:                  d.Published,
		IndexDescriptor:                 d,
	}
}

// persistWrite is the PERSIST stage: commits the payload bytes (if
// streamed separately from the envelope), then the message itself, then
// its event-log entry, in that order so a crash between steps never
// leaves an indexed message pointing at data that was never stored.
func (h *Handlers) persistWrite(ctx context.Context, tenant string, d *dwnmodel.RecordsWriteDescriptor, msg *dwnmodel.Message, data io.Reader) error {
	if len(msg.EncodedData) == 0 && data != nil {
		if _, err := h.deps.DataStore.Put(ctx, tenant, d.RecordID, d.DataCID, data); err != nil {
			return fmt.Errorf("dwn: storing data: %w", err)
		}
	}

	encoded, err := codec.EncodeCanonical(map[string]any{
		"descriptor":    msg.Descriptor,
		"authorization": msg.Authorization,
		"attestation":   msg.Attestation,
		"encryption":    msg.Encryption,
	})
	if err != nil {
		return fmt.Errorf("dwn: encoding message: %w", err)
	}

	indexes := writeIndexes(d, msg)
	if err := h.deps.MessageStore.Put(ctx, tenant, msg.MessageCID, encoded, indexes); err != nil {
		return fmt.Errorf("dwn: persisting message: %w", err)
	}
	if err := h.deps.EventLog.Append(ctx, tenant, msg.MessageCID, d.RecordID, indexes); err != nil {
		return fmt.Errorf("dwn: appending event: %w", err)
	}
	return nil
}
