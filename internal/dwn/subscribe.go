package dwn

import (
	"context"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/eventstream"
)

// RecordsSubscribe installs a live notification feed over
// h.deps.EventStream, spec §4.9. It applies no record-level
// authorization of its own beyond signature verification: the filter
// governs what a subscriber asked to watch, and the same per-notification
// exposure rules RecordsQuery applies are left to the caller's own
// re-query on each notification, since a Hub notification carries only
// indexed fields, not a full authorization decision. A host that needs
// stricter per-notification gating wraps EventStream.Subscribe itself.
func (h *Handlers) RecordsSubscribe(ctx context.Context, tenant string, raw []byte) (*Reply, <-chan eventstream.Notification, func()) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error())), nil, nil
	}
	d, ok := msg.Descriptor.(*dwnmodel.RecordsSubscribeDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a RecordsSubscribe descriptor")), nil, nil
	}

	if err := validateStructure(msg); err != nil {
		return errorReply(err), nil, nil
	}
	if _, err := h.verifySignatures(ctx, msg); err != nil {
		return errorReply(err), nil, nil
	}

	if h.deps.EventStream == nil {
		return errorReply(dwnerr.New(dwnerr.ActionNotAllowed, "event subscriptions are not enabled")), nil, nil
	}

	ch, cancel := h.deps.EventStream.Subscribe(tenant, d.Filters)
	return &Reply{Status: Status{Code: 200}}, ch, cancel
}
