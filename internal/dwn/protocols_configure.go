package dwn

import (
	"context"
	"fmt"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// ProtocolsConfigure installs or replaces a tenant's protocol definition,
// spec §3/§4.9. Only the tenant itself may configure its own protocols —
// there is no delegated or protocol-ruled path for this operation, unlike
// RecordsWrite.
func (h *Handlers) ProtocolsConfigure(ctx context.Context, tenant string, raw []byte) *Reply {
	msg, err := ParseMessage(raw)
	if err != nil {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, err.Error()))
	}
	d, ok := msg.Descriptor.(*dwnmodel.ProtocolsConfigureDescriptor)
	if !ok {
		return errorReply(dwnerr.New(dwnerr.MalformedMessage, "expected a ProtocolsConfigure descriptor"))
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
	if msg.Author != tenant {
		return errorReply(dwnerr.New(dwnerr.Unauthorized, "only the tenant may configure its own protocols"))
	}

	unlock := h.lockTenant(tenant)
	defer unlock()

	encoded, err := codec.EncodeCanonical(map[string]any{
		"descriptor":    msg.Descriptor,
		"authorization": msg.Authorization,
	})
	if err != nil {
		return errorReply(fmt.Errorf("dwn: encoding message: %w", err))
	}

	indexes := map[string]any{
		IndexInterface:          dwnmodel.InterfaceProtocols,
		IndexMethod:             dwnmodel.MethodConfigure,
		"protocol":              d.Protocol,
		IndexProtocolDefinition: d.Definition,
	}
	if err := h.deps.MessageStore.Put(ctx, tenant, msg.MessageCID, encoded, indexes); err != nil {
		return errorReply(fmt.Errorf("dwn: persisting protocol definition: %w", err))
	}
	if err := h.deps.EventLog.Append(ctx, tenant, msg.MessageCID, d.Protocol, indexes); err != nil {
		return errorReply(fmt.Errorf("dwn: appending event: %w", err))
	}

	return &Reply{Status: Status{Code: 202}}
}
