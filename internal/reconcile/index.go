package reconcile

// Index property names the reconciler reads from and the write/delete
// handlers must populate when calling MessageStore.Put — the convention
// that lets the reconciler recover a record's immutable fields and
// ordering from indexed properties alone, without re-decoding CBOR.
const (
	IndexRecordID         = "recordId"
	IndexMessageTimestamp = "messageTimestamp"
	IndexIsInitialWrite   = "isInitialWrite"
	IndexIsDelete         = "isDelete"
	IndexAuthor           = "author"
	IndexDateCreated      = "dateCreated"
	IndexSchema           = "schema"
	IndexDataFormat       = "dataFormat"
	IndexProtocol         = "protocol"
	IndexProtocolPath     = "protocolPath"
	IndexRecipient        = "recipient"
	IndexParentID         = "parentId"
	IndexDataCID          = "dataCid"
	IndexContextID        = "contextId"
)
