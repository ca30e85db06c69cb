package dwn

import (
	"fmt"

	"github.com/onnwee/dwnd/internal/dwnerr"
	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// validateStructure is the VALIDATE_STRUCTURE stage: structural checks a
// message must pass before its signatures or CIDs are even worth
// checking. It never inspects payload bytes against a schema — that is
// Deps.SchemaValidator's job, invoked later once the descriptor's schema
// field and the payload bytes are both in hand — only whether the
// descriptor itself is well-formed for its own kind. Every failure here
// is spec §7's MalformedMessage.
func validateStructure(msg *dwnmodel.Message) error {
	if msg.Authorization == nil || len(msg.Authorization.Signatures) == 0 {
		return dwnerr.New(dwnerr.MalformedMessage, "message has no authorization signatures")
	}

	switch d := msg.Descriptor.(type) {
	case *dwnmodel.RecordsWriteDescriptor:
		switch {
		case d.RecordID == "":
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite missing recordId")
		case d.DataFormat == "":
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite missing dataFormat")
		case d.DataCID == "":
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite missing dataCid")
		case d.DateCreated.IsZero():
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite missing dateCreated")
		case d.MessageTimestamp.IsZero():
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite missing messageTimestamp")
		case d.ProtocolPath != "" && d.Protocol == "":
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite has protocolPath without protocol")
		case d.ParentID != "" && d.Protocol == "":
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsWrite has parentId without protocol")
		}
	case *dwnmodel.RecordsDeleteDescriptor:
		if d.RecordID == "" {
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsDelete missing recordId")
		}
	case *dwnmodel.RecordsReadDescriptor:
		if d.RecordID == "" {
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsRead missing recordId")
		}
	case *dwnmodel.RecordsQueryDescriptor:
		if len(d.Filters) == 0 {
			return dwnerr.New(dwnerr.MalformedMessage, "RecordsQuery has no filters")
		}
	case *dwnmodel.RecordsSubscribeDescriptor:
		// Empty filters means "everything this tenant owns" and is valid.
	case *dwnmodel.ProtocolsConfigureDescriptor:
		switch {
		case d.Protocol == "":
			return dwnerr.New(dwnerr.MalformedMessage, "ProtocolsConfigure missing protocol")
		case d.Definition.Structure == nil:
			return dwnerr.New(dwnerr.MalformedMessage, "ProtocolsConfigure missing definition.structure")
		}
	case *dwnmodel.ProtocolsQueryDescriptor:
		// Protocol may be empty (list everything installed).
	case *dwnmodel.PermissionsGrantDescriptor:
		switch {
		case d.RecordID == "":
			return dwnerr.New(dwnerr.MalformedMessage, "PermissionsGrant missing recordId")
		case d.GrantedBy == "" || d.GrantedTo == "" || d.GrantedFor == "":
			return dwnerr.New(dwnerr.MalformedMessage, "PermissionsGrant missing grantedBy/grantedTo/grantedFor")
		case d.DateExpires.IsZero():
			return dwnerr.New(dwnerr.MalformedMessage, "PermissionsGrant missing dateExpires")
		case d.Scope.Interface == "" || d.Scope.Method == "":
			return dwnerr.New(dwnerr.MalformedMessage, "PermissionsGrant scope missing interface/method")
		}
	case *dwnmodel.PermissionsRevokeDescriptor:
		switch {
		case d.RecordID == "":
			return dwnerr.New(dwnerr.MalformedMessage, "PermissionsRevoke missing recordId")
		case d.PermissionsGrantID == "":
			return dwnerr.New(dwnerr.MalformedMessage, "PermissionsRevoke missing permissionsGrantId")
		}
	default:
		return dwnerr.New(dwnerr.MalformedMessage, fmt.Sprintf("unknown descriptor type %T", d))
	}
	return nil
}
