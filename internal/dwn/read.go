package dwn

import (
	"context"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// RecordsRead runs the read pipeline of spec §4.9. Unlike write-shaped
// operations, its authorization depends on the record it targets, so
// target resolution happens before AUTHORIZE rather than being folded
// into RECONCILE (reads never reconcile or persist anything).
func (h *Handlers) RecordsRead(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.Descriptor.(*dwnmodel.RecordsReadDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a RecordsRead descriptor"))
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err)
	}
	payload, err := h.verifySignatures(ctx, msg)
	if err != nil {
		return errorReply(err)
	}

	sm, err := h.loadLatestRecord(ctx, tenant, d.RecordID)
	if err != nil {
		return errorReply(err)
	}
	if asBool(sm.Indexes[reconcile.IndexIsDelete]) {
		return errorReply(dwnerr.New(dwnerr.NotFound, "record has been deleted"))
	}
	if err := h.canReadRecord(ctx, tenant, msg.Author, sm, payload.PermissionsGrantID); err != nil {
		return errorReply(err)
	}

	entry, err := h.recordEntryFromStored(ctx, tenant, sm)
	if err != nil {
		return errorReply(err)
	}
	return &Reply{Status: Status{Code: 200}, Record: entry}
}
