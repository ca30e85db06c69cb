package dwn

import (
	"context"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
)

// ProtocolsQuery lists installed protocol definitions, optionally
// narrowed to one protocol. Protocol definitions describe the shape of a
// tenant's data, not the data itself, so they carry no confidentiality of
// their own: any signed, correctly-addressed caller may query them, the
// same way a public API schema is never access-controlled even when the
// data behind it is.
func (h *Handlers) ProtocolsQuery(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.Descriptor.(*dwnmodel.ProtocolsQueryDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a ProtocolsQuery descriptor"))
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err)
	}
	if _, err := h.verifySignatures(ctx, msg); err != nil {
		return errorReply(err)
	}

	filters := []dwnmodel.FilterSet{{
		IndexInterface: dwnmodel.ClauseValue{Equals: dwnmodel.InterfaceProtocols},
		IndexMethod:    dwnmodel.ClauseValue{Equals: dwnmodel.MethodConfigure},
	}}
	if d.Protocol != "" {
		filters[0]["protocol"] = dwnmodel.ClauseValue{Equals: d.Protocol}
	}

	results, cursor, err := h.deps.MessageStore.Query(ctx, tenant, filters, messagestore.QueryOptions{})
	if err != nil {
		return errorReply(err)
	}

	entries := make([]*RecordEntry, 0, len(results))
	for _, sm := range results {
		var def dwnmodel.ProtocolDefinition
		if err := reshape(sm.Indexes[IndexProtocolDefinition], &def); err != nil {
			continue
		}
		entries = append(entries, &RecordEntry{
			Descriptor: &dwnmodel.ProtocolsConfigureDescriptor{
				Protocol:   asString(sm.Indexes["protocol"]),
				Definition: def,
			},
			MessageCID: sm.MessageCID,
		})
	}

	return &Reply{Status: Status{Code: 200}, Entries: entries, Cursor: cursor}
}
