package grant

// Index property names a PermissionsGrant/PermissionsRevoke message is
// stored under in MessageStore, mirroring internal/reconcile's Index*
// convention: internal/dwn's grant/revoke handlers populate these keys on
// MessageStore.Put, and GrantLoader reads them back without re-decoding
// the message's CBOR payload.
const (
	IndexGrantID     = "recordId" // a grant's own recordId doubles as its grantId
	IndexGrantedBy   = "grantedBy"
	IndexGrantedTo   = "grantedTo"
	IndexGrantedFor  = "grantedFor"
	IndexDateExpires = "dateExpires"
	IndexScope       = "scope"
	IndexConditions  = "conditions"

	// IndexRevokedGrantID is the indexed permissionsGrantId on a stored
	// PermissionsRevoke message, letting CheckRevoked look a revocation up
	// directly instead of scanning every message for a tenant.
	IndexRevokedGrantID = "permissionsGrantId"
)
