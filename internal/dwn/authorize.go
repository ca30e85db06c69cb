package dwn

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/grant"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/protocol"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// IndexPublished is the index key reconcile leaves unmanaged (publication
// status is explicitly mutable, not part of reconcile's immutable-field
// set) but that read/query authorization needs to find current records
// by: a record's latest write controls whether it is publicly readable.
const IndexPublished = "published"

// loadLatestRecord finds the current state of recordId: the write not
// flagged isInitialWrite, or the initial write itself if the record has
// never been modified, mirroring internal/reconcile's own notion of
// "latest" without duplicating its private recordState bookkeeping.
func (h *Handlers) loadLatestRecord(ctx context.Context, tenant, recordID string) (*messagestore.StoredMessage, error) {
	filters := []dwnmodel.FilterSet{{reconcile.IndexRecordID: dwnmodel.ClauseValue{Equals: recordID}}}
	results, _, err := h.deps.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("dwn: loading record %s: %w", recordID, err)
	}
	if len(results) == 0 {
		return nil, dwnerr.New(dwnerr.NotFound, fmt.Sprintf("record %s not found", recordID))
	}
	var initial, latest *messagestore.StoredMessage
	for _, sm := range results {
		if asBool(sm.Indexes[reconcile.IndexIsInitialWrite]) {
			initial = sm
		} else {
			latest = sm
		}
	}
	if latest != nil {
		return latest, nil
	}
	return initial, nil
}

// loadAncestors walks contextId's prefix chain (root first, excluding the
// record itself) and returns each ancestor's protocol-rule-relevant
// fields, resolved via their own stored contextId.
func (h *Handlers) loadAncestors(ctx context.Context, tenant, contextID string) ([]protocol.AncestorRecord, error) {
	if contextID == "" {
		return nil, nil
	}
	segments := strings.Split(contextID, "/")
	if len(segments) <= 1 {
		return nil, nil
	}
	ancestors := make([]protocol.AncestorRecord, 0, len(segments)-1)
	prefix := segments[0]
	for i := 1; i < len(segments); i++ {
		filters := []dwnmodel.FilterSet{{reconcile.IndexContextID: dwnmodel.ClauseValue{Equals: prefix}}}
		results, _, err := h.deps.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("dwn: loading ancestor %s: %w", prefix, err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("dwn: ancestor record for contextId %s not found", prefix)
		}
		sm := results[0]
		ancestors = append(ancestors, protocol.AncestorRecord{
			ProtocolPath: asString(sm.Indexes[reconcile.IndexProtocolPath]),
			Author:       asString(sm.Indexes[reconcile.IndexAuthor]),
			Recipient:    asString(sm.Indexes[reconcile.IndexRecipient]),
		})
		if i < len(segments) {
			prefix = prefix + "/" + segments[i]
		}
	}
	return ancestors, nil
}

// loadRoleGrants finds every RecordsWrite under protocolName whose
// protocolPath is one of the definition's $role nodes. Skipped entirely
// when the definition declares no role nodes, the common case.
func (h *Handlers) loadRoleGrants(ctx context.Context, tenant, protocolName string, def *dwnmodel.ProtocolDefinition) ([]protocol.RoleRecord, error) {
	roleLabels := collectRoleLabels(def)
	if len(roleLabels) == 0 {
		return nil, nil
	}

	oneOf := make([]any, len(roleLabels))
	for i, l := range roleLabels {
		oneOf[i] = l
	}
	filters := []dwnmodel.FilterSet{{
		reconcile.IndexProtocol:     dwnmodel.ClauseValue{Equals: protocolName},
		reconcile.IndexProtocolPath: dwnmodel.ClauseValue{OneOf: oneOf},
	}}
	results, _, err := h.deps.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("dwn: loading role grants for %s: %w", protocolName, err)
	}

	grants := make([]protocol.RoleRecord, 0, len(results))
	for _, sm := range results {
		grants = append(grants, protocol.RoleRecord{
			RoleLabel: asString(sm.Indexes[reconcile.IndexProtocolPath]),
			Recipient: asString(sm.Indexes[reconcile.IndexRecipient]),
		})
	}
	return grants, nil
}

// evaluateProtocolRule gathers a protocol definition, ancestor chain, and
// role grants, then runs the pure rule engine of internal/protocol — the
// one place this package turns "is there an installed rule admitting this
// actor" into a yes/no answer.
func (h *Handlers) evaluateProtocolRule(ctx context.Context, tenant, protocolName, protocolPath, contextID, schema, dataFormat string, action dwnmodel.Can, author string) error {
	def, err := h.loadProtocolDefinition(ctx, tenant, protocolName)
	if err != nil {
		return dwnerr.New(dwnerr.ActionNotAllowed, err.Error())
	}
	ancestors, err := h.loadAncestors(ctx, tenant, contextID)
	if err != nil {
		return err
	}
	roleGrants, err := h.loadRoleGrants(ctx, tenant, protocolName, def)
	if err != nil {
		return err
	}

	return protocol.Evaluate(protocol.EvaluationInput{
		Definition:   def,
		ProtocolPath: protocolPath,
		Schema:       schema,
		DataFormat:   dataFormat,
		Action:       action,
		Author:       author,
		TenantDID:    tenant,
		Ancestors:    ancestors,
		RoleGrants:   roleGrants,
	})
}

// authorizeViaGrant loads and evaluates a PermissionsGrant named grantID,
// spec §4.8 in full: load, identity, expiry/revocation, scope, and (for
// RecordsWrite) publication condition.
func (h *Handlers) authorizeViaGrant(ctx context.Context, tenant, author, grantID, iface, method string, target *grant.TargetScope, filterProtocol string, published *bool) error {
	if h.deps.GrantLoader == nil {
		return dwnerr.New(dwnerr.Unauthorized, "no grant loader configured")
	}
	rec, err := h.deps.GrantLoader.Load(ctx, tenant, grantID)
	if err != nil {
		return err
	}
	revoked, err := h.deps.GrantLoader.CheckRevoked(ctx, tenant, grantID)
	if err != nil {
		return err
	}
	return grant.Authorize(grant.Input{
		Now:            h.deps.Clock.Now(),
		Tenant:         tenant,
		Author:         author,
		Interface:      iface,
		Method:         method,
		Grant:          rec,
		Revoked:        revoked,
		Target:         target,
		FilterProtocol: filterProtocol,
		Published:      published,
	})
}

// recordTargetScope builds a grant.TargetScope from a stored record's
// indexed fields, for step 6 of spec §4.8 against an existing record
// (RecordsRead/RecordsDelete).
func recordTargetScope(sm *messagestore.StoredMessage) *grant.TargetScope {
	return &grant.TargetScope{
		Protocol:     asString(sm.Indexes[reconcile.IndexProtocol]),
		ContextID:    asString(sm.Indexes[reconcile.IndexContextID]),
		ProtocolPath: asString(sm.Indexes[reconcile.IndexProtocolPath]),
		Schema:       asString(sm.Indexes[reconcile.IndexSchema]),
	}
}

// grantTargetFromWrite builds a grant.TargetScope from an incoming
// RecordsWrite's own descriptor fields, for step 6 of spec §4.8 against a
// not-yet-committed write (as opposed to recordTargetScope, which reads
// an already-stored record for RecordsRead/RecordsDelete).
func grantTargetFromWrite(d *dwnmodel.RecordsWriteDescriptor) *grant.TargetScope {
	return &grant.TargetScope{
		Protocol:     d.Protocol,
		ContextID:    d.ContextID,
		ProtocolPath: d.ProtocolPath,
		Schema:       d.Schema,
	}
}

// canReadRecord implements spec §4.9's RecordsRead authorization: tenant
// owns it, it is published, the caller is its recipient, an installed
// protocol rule admits the reader, or a permission grant authorizes it.
// grantID is the permissionsGrantId carried by the request, if any.
func (h *Handlers) canReadRecord(ctx context.Context, tenant, author string, sm *messagestore.StoredMessage, grantID string) error {
	if author == tenant {
		return nil
	}
	if asBool(sm.Indexes[IndexPublished]) {
		return nil
	}
	if asString(sm.Indexes[reconcile.IndexRecipient]) == author {
		return nil
	}

	protocolName := asString(sm.Indexes[reconcile.IndexProtocol])
	if protocolName != "" {
		err := h.evaluateProtocolRule(ctx, tenant, protocolName,
			asString(sm.Indexes[reconcile.IndexProtocolPath]),
			asString(sm.Indexes[reconcile.IndexContextID]),
			asString(sm.Indexes[reconcile.IndexSchema]),
			asString(sm.Indexes[reconcile.IndexDataFormat]),
			dwnmodel.CanRead, author)
		if err == nil {
			return nil
		}
	}

	if grantID != "" {
		target := recordTargetScope(sm)
		if err := h.authorizeViaGrant(ctx, tenant, author, grantID, dwnmodel.InterfaceRecords, dwnmodel.MethodRead, target, "", nil); err == nil {
			return nil
		}
	}

	return dwnerr.New(dwnerr.Unauthorized, "not authorized to read this record")
}
