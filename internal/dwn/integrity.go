package dwn

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// verifyIntegrity is the VERIFY_INTEGRITY_CIDS stage of spec §4.9: every
// CID commitment the message's own authorization payload makes must
// match what's actually attached. recordId/contextId derivation is only
// recomputed for an initial RecordsWrite; a modifying write's recordId
// and contextId are fixed at the initial write and re-verified instead by
// the RECONCILE stage's immutable-field check against stored state.
func (h *Handlers) verifyIntegrity(ctx context.Context, tenant string, msg *dwnmodel.Message, payload *dwnmodel.AuthorizationPayload) error {
	descriptorCID, err := dwnmodel.DescriptorCID(msg.Descriptor)
	if err != nil {
		return fmt.Errorf("dwn: compute descriptorCid: %w", err)
	}
	msg.DescriptorCID = descriptorCID
	if payload.DescriptorCID != descriptorCID {
		return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
			"authorization.descriptorCid %q does not match computed %q", payload.DescriptorCID, descriptorCID))
	}

	if msg.Attestation != nil {
		attestationCID, err := dwnmodel.DescriptorCID(dwnmodel.AttestationPayload{DescriptorCID: descriptorCID})
		if err != nil {
			return fmt.Errorf("dwn: compute attestationCid: %w", err)
		}
		if payload.AttestationCID != attestationCID {
			return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
				"authorization.attestationCid %q does not match computed %q", payload.AttestationCID, attestationCID))
		}
	}

	if msg.Encryption != nil {
		encryptionCID, err := dwnmodel.DescriptorCID(msg.Encryption)
		if err != nil {
			return fmt.Errorf("dwn: compute encryptionCid: %w", err)
		}
		if payload.EncryptionCID != encryptionCID {
			return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
				"authorization.encryptionCid %q does not match computed %q", payload.EncryptionCID, encryptionCID))
		}
	}

	switch d := msg.Descriptor.(type) {
	case *dwnmodel.RecordsWriteDescriptor:
		if err := h.verifyRecordsWriteIntegrity(ctx, tenant, d, msg, payload); err != nil {
			return err
		}
	case *dwnmodel.RecordsDeleteDescriptor:
		if payload.RecordID != d.RecordID {
			return recordIDMismatch(payload.RecordID, d.RecordID)
		}
	case *dwnmodel.PermissionsGrantDescriptor:
		if payload.RecordID != d.RecordID {
			return recordIDMismatch(payload.RecordID, d.RecordID)
		}
	case *dwnmodel.PermissionsRevokeDescriptor:
		if payload.RecordID != d.RecordID {
			return recordIDMismatch(payload.RecordID, d.RecordID)
		}
		if payload.PermissionsGrantID != d.PermissionsGrantID {
			return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
				"authorization.permissionsGrantId %q does not match descriptor.permissionsGrantId %q",
				payload.PermissionsGrantID, d.PermissionsGrantID))
		}
	}

	msg.MessageCID = codec.MustCID(map[string]any{
		"descriptor":    msg.Descriptor,
		"authorization": msg.Authorization,
	})
	return nil
}

func recordIDMismatch(payloadRecordID, descriptorRecordID string) error {
	return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
		"authorization.recordId %q does not match descriptor.recordId %q", payloadRecordID, descriptorRecordID))
}

func (h *Handlers) verifyRecordsWriteIntegrity(ctx context.Context, tenant string, d *dwnmodel.RecordsWriteDescriptor, msg *dwnmodel.Message, payload *dwnmodel.AuthorizationPayload) error {
	if len(msg.EncodedData) > 0 {
		actual := codec.CIDFromBytes(msg.EncodedData)
		if actual != d.DataCID {
			return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
				"inline data hashes to %q, descriptor declares %q", actual, d.DataCID))
		}
	}

	if !d.IsInitialWrite() {
		if payload.RecordID != d.RecordID {
			return recordIDMismatch(payload.RecordID, d.RecordID)
		}
		return nil
	}

	entryID, err := dwnmodel.ComputeEntryID(d, msg.Author)
	if err != nil {
		return fmt.Errorf("dwn: compute entryId: %w", err)
	}
	if d.RecordID != entryID {
		return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
			"descriptor.recordId %q does not match computed entryId %q", d.RecordID, entryID))
	}
	if payload.RecordID != d.RecordID {
		return recordIDMismatch(payload.RecordID, d.RecordID)
	}

	if d.Protocol == "" {
		return nil
	}

	var ancestorEntryIDs []string
	if d.ParentID != "" {
		parentContextID, err := h.lookupContextID(ctx, tenant, d.ParentID)
		if err != nil {
			return err
		}
		ancestorEntryIDs = strings.Split(parentContextID, "/")
	}
	expectedContextID := dwnmodel.ComputeContextID(ancestorEntryIDs, entryID)
	if d.ContextID != expectedContextID {
		return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
			"descriptor.contextId %q does not match computed %q", d.ContextID, expectedContextID))
	}
	if payload.ContextID != expectedContextID {
		return dwnerr.New(dwnerr.IntegrityMismatch, fmt.Sprintf(
			"authorization.contextId %q does not match computed %q", payload.ContextID, expectedContextID))
	}
	return nil
}

// lookupContextID resolves a parent recordId to its stored contextId, so
// a child write's own contextId can be verified without the client having
// to supply the whole ancestor chain.
func (h *Handlers) lookupContextID(ctx context.Context, tenant, parentRecordID string) (string, error) {
	filters := []dwnmodel.FilterSet{{reconcile.IndexRecordID: dwnmodel.ClauseValue{Equals: parentRecordID}}}
	results, _, err := h.deps.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{Limit: 1})
	if err != nil {
		return "", fmt.Errorf("dwn: resolving parent %s: %w", parentRecordID, err)
	}
	if len(results) == 0 {
		return "", dwnerr.New(dwnerr.NotFound, fmt.Sprintf("parent record %s not found", parentRecordID))
	}
	contextID, _ := results[0].Indexes[reconcile.IndexContextID].(string)
	if contextID == "" {
		return "", fmt.Errorf("dwn: parent record %s has no contextId", parentRecordID)
	}
	return contextID, nil
}
