package dwnmodel

import (
	"strings"

	"github.com/onnwee/dwnd/internal/codec"
)

// EntryIDInput is the object whose CID becomes a record's recordId: the
// initial write's descriptor plus its author. dataCid is deliberately
// excluded — see DESIGN.md's Open Question decision — so a mutable
// record's identity survives content-changing writes.
type EntryIDInput struct {
	Descriptor *RecordsWriteDescriptor
	Author     string
}

// ComputeEntryID derives the recordId for an initial RecordsWrite by the
// given author. It is computed exactly once, from the initial write's
// descriptor, and then carried forward unchanged by every subsequent write
// to the same record — later writes never recompute it from their own
// (possibly different) descriptor.
//
// dataCid is zeroed before hashing regardless of what the initial write
// carried: see DESIGN.md's Open Question decision. recordId and contextId
// are zeroed too, since both are derived from this hash. Every other descriptor
// field, including ones that happened to be mutable-looking at the time
// (Published, DatePublished), participates exactly as the initial write
// set it — that snapshot is fixed forever once recordId is computed.
func ComputeEntryID(initial *RecordsWriteDescriptor, author string) (string, error) {
	withoutDataCID := *initial
	withoutDataCID.DataCID = ""
	withoutDataCID.RecordID = ""
	withoutDataCID.ContextID = ""

	input := map[string]any{
		"descriptor": &withoutDataCID,
		"author":     author,
	}
	return codec.CID(input)
}

// ComputeContextID joins an ancestor chain's entry IDs (root first) with
// "/", spec §3: "the chain of entry IDs from the root protocol record
// joined by '/'".
func ComputeContextID(ancestorEntryIDs []string, ownEntryID string) string {
	chain := append(append([]string{}, ancestorEntryIDs...), ownEntryID)
	return strings.Join(chain, "/")
}

// DescriptorCID computes the CID of a descriptor, used both to populate
// Message.DescriptorCID and to verify authorization.payload.descriptorCid
// during VERIFY_INTEGRITY_CIDS.
func DescriptorCID(d any) (string, error) {
	return codec.CID(d)
}
