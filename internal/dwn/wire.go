package dwn

import (
	"encoding/json"
	"fmt"

	"github.com/onnwee/dwnd/internal/codec"
	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/envelope"
)

// wireEnvelope is the raw JSON shape of a message on the wire, spec §6:
// {descriptor, authorization, attestation?, encryption?, encodedData?}.
// descriptor is kept as a RawMessage because which concrete Descriptor
// type it unmarshals into depends on its own interface/method fields,
// read via descriptorHeader first.
type wireEnvelope struct {
	Descriptor    json.RawMessage        `json:"descriptor"`
	Authorization *envelope.SignedObject `json:"authorization"`
	Attestation   *envelope.SignedObject `json:"attestation,omitempty"`
	Encryption    *dwnmodel.Encryption   `json:"encryption,omitempty"`
	EncodedData   string                 `json:"encodedData,omitempty"`
}

// descriptorHeader is the pair every descriptor variant's wire JSON
// carries, used only to pick which struct to unmarshal the rest of
// descriptor into. It is not itself part of any Descriptor's Go fields
// (Interface()/Method() are computed, not serialized) since a tagged Go
// variant already knows its own kind; the wire form still needs an
// explicit discriminator for an untyped JSON blob to carry one.
type descriptorHeader struct {
	Interface string `json:"interface"`
	Method    string `json:"method"`
}

// ParseMessage decodes the wire envelope of spec §6 into a typed Message.
// It performs no verification of any kind: no signature check, no CID
// check, no structural validation beyond "this JSON decodes at all" and
// "interface/method name a known variant". Those are later pipeline
// stages (verifySignatures, verifyIntegrity, validateStructure).
func ParseMessage(data []byte) (*dwnmodel.Message, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("dwn: decode envelope: %w", err)
	}
	if wire.Descriptor == nil {
		return nil, fmt.Errorf("dwn: envelope has no descriptor")
	}

	var header descriptorHeader
	if err := json.Unmarshal(wire.Descriptor, &header); err != nil {
		return nil, fmt.Errorf("dwn: decode descriptor header: %w", err)
	}

	desc, err := unmarshalDescriptor(header, wire.Descriptor)
	if err != nil {
		return nil, err
	}

	msg := &dwnmodel.Message{
		Descriptor:    desc,
		Authorization: wire.Authorization,
		Attestation:   wire.Attestation,
		Encryption:    wire.Encryption,
	}

	if wire.EncodedData != "" {
		raw, err := codec.Base64URLDecode(wire.EncodedData)
		if err != nil {
			return nil, fmt.Errorf("dwn: decode encodedData: %w", err)
		}
		msg.EncodedData = raw
	}

	return msg, nil
}

func unmarshalDescriptor(header descriptorHeader, raw json.RawMessage) (dwnmodel.Descriptor, error) {
	switch {
	case header.Interface == dwnmodel.InterfaceRecords && header.Method == dwnmodel.MethodWrite:
		var d dwnmodel.RecordsWriteDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode RecordsWrite descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfaceRecords && header.Method == dwnmodel.MethodDelete:
		var d dwnmodel.RecordsDeleteDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode RecordsDelete descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfaceRecords && header.Method == dwnmodel.MethodRead:
		var d dwnmodel.RecordsReadDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode RecordsRead descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfaceRecords && header.Method == dwnmodel.MethodQuery:
		var d dwnmodel.RecordsQueryDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode RecordsQuery descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfaceRecords && header.Method == dwnmodel.MethodSubscribe:
		var d dwnmodel.RecordsSubscribeDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode RecordsSubscribe descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfaceProtocols && header.Method == dwnmodel.MethodConfigure:
		var d dwnmodel.ProtocolsConfigureDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode ProtocolsConfigure descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfaceProtocols && header.Method == dwnmodel.MethodQuery:
		var d dwnmodel.ProtocolsQueryDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode ProtocolsQuery descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfacePermissions && header.Method == dwnmodel.MethodGrant:
		var d dwnmodel.PermissionsGrantDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode PermissionsGrant descriptor: %w", err)
		}
		return &d, nil
	case header.Interface == dwnmodel.InterfacePermissions && header.Method == dwnmodel.MethodRevoke:
		var d dwnmodel.PermissionsRevokeDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("dwn: decode PermissionsRevoke descriptor: %w", err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("dwn: unrecognized interface/method %q/%q", header.Interface, header.Method)
	}
}
