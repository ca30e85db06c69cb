package dwn

// Index property names this package owns, layered on top of
// internal/reconcile's and internal/grant's Index* conventions for the
// same shared MessageStore. IndexInterface/IndexMethod discriminate
// message kind on keys that would otherwise mean different things for
// different kinds stored side by side (e.g. reconcile.IndexProtocol means
// "this record belongs to protocol X" on a RecordsWrite, but "this
// installs protocol X" on a ProtocolsConfigure). The protocol-definition
// lookups (loadProtocolDefinition, ProtocolsQuery) also filter on
// interface/method; lookups by recordId alone (lookupContextID, the
// reconciler) and grant.Loader's revocation query do not.
const (
	IndexInterface = "interface"
	IndexMethod    = "method"

	// IndexProtocolDefinition holds a ProtocolsConfigure message's decoded
	// dwnmodel.ProtocolDefinition, stored as a live value exactly as
	// internal/grant stores a grant's Scope/Conditions, so the protocol
	// rule engine never has to re-decode CBOR to evaluate a rule.
	IndexProtocolDefinition = "definition"

	// IndexDescriptor holds a record's own decoded Descriptor, stored as a
	// live value so Read/Query can hand a caller back a typed descriptor
	// without re-decoding the stored message's encoded bytes.
	IndexDescriptor = "descriptor"
)
