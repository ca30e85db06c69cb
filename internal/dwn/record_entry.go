package dwn

import (
	"context"
	"fmt"

	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// recordEntryFromStored builds the RecordEntry a caller sees out of a
// stored message: its descriptor (recovered from IndexDescriptor, not
// re-decoded from the stored encoded bytes) plus a lazily opened data
// stream when the record carries a dataCid and the bytes live in
// DataStore rather than inline.
func (h *Handlers) recordEntryFromStored(ctx context.Context, tenant string, sm *messagestore.StoredMessage) (*RecordEntry, error) {
	desc, err := recordsWriteDescriptorFromIndexes(sm)
	if err != nil {
		return nil, err
	}

	entry := &RecordEntry{
		Descriptor: desc,
		RecordID:   asString(sm.Indexes[reconcile.IndexRecordID]),
		MessageCID: sm.MessageCID,
	}

	if desc.DataCID == "" {
		return entry, nil
	}
	rc, err := h.deps.DataStore.Get(ctx, tenant, entry.RecordID, desc.DataCID)
	if err != nil {
		return nil, fmt.Errorf("dwn: loading data for %s: %w", entry.RecordID, err)
	}
	entry.Data = rc
	return entry, nil
}

func recordsWriteDescriptorFromIndexes(sm *messagestore.StoredMessage) (*dwnmodel.RecordsWriteDescriptor, error) {
	var d dwnmodel.RecordsWriteDescriptor
	if err := reshape(sm.Indexes[IndexDescriptor], &d); err != nil {
		return nil, fmt.Errorf("dwn: decoding stored descriptor: %w", err)
	}
	return &d, nil
}
