package dwn

import (
	"context"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// RecordsQuery runs spec §4.9's query pipeline. Authorization is applied
// per result rather than as a single pass/fail gate: the caller always
// gets back whichever of the matched records it may read (owned,
// published, addressed to it, protocol-admitted, or grant-covered), never
// an outright rejection for querying at all. Filtering for authorization
// happens after MessageStore's own pagination, so a returned page can
// hold fewer than the requested limit even when more matching records
// exist.
func (h *Handlers) RecordsQuery(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.Descriptor.(*dwnmodel.RecordsQueryDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a RecordsQuery descriptor"))
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err)
	}
	payload, err := h.verifySignatures(ctx, msg)
	if err != nil {
		return errorReply(err)
	}

	opts := messagestore.QueryOptions{Sort: d.Sort}
	if d.Pagination != nil {
		opts.Cursor = d.Pagination.Cursor
		opts.Limit = d.Pagination.Limit
	}

	results, cursor, err := h.deps.MessageStore.Query(ctx, tenant, d.Filters, opts)
	if err != nil {
		return errorReply(err)
	}

	filterProtocol := filterSetsProtocol(d.Filters)
	entries := make([]*RecordEntry, 0, len(results))
	for _, sm := range results {
		if asBool(sm.Indexes[reconcile.IndexIsDelete]) {
			continue
		}
		if h.canReadRecord(ctx, tenant, msg.Author, sm, payload.PermissionsGrantID) != nil {
			if !h.canQueryViaGrant(ctx, tenant, msg.Author, payload.PermissionsGrantID, filterProtocol) {
				continue
			}
		}
		entry, err := h.recordEntryFromStored(ctx, tenant, sm)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return &Reply{Status: Status{Code: 200}, Entries: entries, Cursor: cursor}
}

// canQueryViaGrant is consulted only when a per-record read check failed:
// a grant scoped at query-time to the invoking filter's protocol (step 8
// of spec §4.8) can still admit a record an ad-hoc per-record check
// otherwise rejects.
func (h *Handlers) canQueryViaGrant(ctx context.Context, tenant, author, grantID, filterProtocol string) bool {
	if grantID == "" {
		return false
	}
	err := h.authorizeViaGrant(ctx, tenant, author, grantID, dwnmodel.InterfaceRecords, dwnmodel.MethodQuery, nil, filterProtocol, nil)
	return err == nil
}

// filterSetsProtocol extracts a single named protocol from a query's
// filters, if every conjunct agrees on one. Used only to evaluate a
// query-scoped grant's step 8 check; an ordinary per-record rule check
// never needs this since it reads the record's own protocol directly.
func filterSetsProtocol(filters []dwnmodel.FilterSet) string {
	for _, fs := range filters {
		if cv, ok := fs["protocol"]; ok {
			if s, ok := cv.Equals.(string); ok {
				return s
			}
		}
	}
	return ""
}
