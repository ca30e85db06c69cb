package dwnmodel

import "github.com/onnwee/dwnd/internal/envelope"

// Encryption carries the message's encryption metadata. The core never
// decrypts payloads — encryption/decryption with AES-CTR/ECIES-secp256k1
// is an external collaborator (spec §1 Non-goals) — it only integrity
// checks the encryptionCid commitment.
type Encryption struct {
	InitializationVector string               `json:"initializationVector"`
	KeyEncryption         []KeyEncryptionEntry `json:"keyEncryption"`
}

// KeyEncryptionEntry is one derivation scheme's wrapped key, spec §3.
type KeyEncryptionEntry struct {
	Scheme             KeyDerivationScheme `json:"derivationScheme"`
	EncryptedKey       string              `json:"encryptedKey"`
	EphemeralPublicKey string              `json:"ephemeralPublicKey,omitempty"`
}

// KeyDerivationScheme names one of the four derivation schemes a message's
// encryption block may carry a wrapped key for.
type KeyDerivationScheme string

const (
	DerivationDataFormats     KeyDerivationScheme = "dataFormats"
	DerivationSchemas         KeyDerivationScheme = "schemas"
	DerivationProtocolPath    KeyDerivationScheme = "protocolPath"
	DerivationProtocolContext KeyDerivationScheme = "protocolContext"
)

// AuthorizationPayload is the JSON committed to by authorization.payload
// (spec §6): the descriptor's CID plus whichever optional correlation IDs
// the message type carries.
type AuthorizationPayload struct {
	DescriptorCID      string `json:"descriptorCid"`
	RecordID           string `json:"recordId,omitempty"`
	ContextID          string `json:"contextId,omitempty"`
	AttestationCID     string `json:"attestationCid,omitempty"`
	EncryptionCID      string `json:"encryptionCid,omitempty"`
	PermissionsGrantID string `json:"permissionsGrantId,omitempty"`
}

// AttestationPayload is the JSON committed to by attestation.payload: a
// descriptorCid only, spec §3.
type AttestationPayload struct {
	DescriptorCID string `json:"descriptorCid"`
}

// Message is a fully parsed, not-yet-verified DWN message: the wire
// envelope of spec §6 decoded into a typed Descriptor plus its signature
// blocks.
type Message struct {
	Descriptor    Descriptor
	Authorization *envelope.SignedObject
	Attestation   *envelope.SignedObject
	Encryption    *Encryption
	EncodedData   []byte

	// DescriptorCID and MessageCID are populated once computed; they are
	// not part of the wire form, they are derived from it.
	DescriptorCID string
	MessageCID    string

	// Author and Attester are populated by signature verification.
	Author   string
	Attester string
}

// IsRecordsWrite reports whether Descriptor is a RecordsWriteDescriptor,
// and returns it for convenience.
func (m *Message) IsRecordsWrite() (*RecordsWriteDescriptor, bool) {
	d, ok := m.Descriptor.(*RecordsWriteDescriptor)
	return d, ok
}

// IsRecordsDelete reports whether Descriptor is a RecordsDeleteDescriptor.
func (m *Message) IsRecordsDelete() (*RecordsDeleteDescriptor, bool) {
	d, ok := m.Descriptor.(*RecordsDeleteDescriptor)
	return d, ok
}

// IsPermissionsRevoke reports whether Descriptor is a
// PermissionsRevokeDescriptor.
func (m *Message) IsPermissionsRevoke() (*PermissionsRevokeDescriptor, bool) {
	d, ok := m.Descriptor.(*PermissionsRevokeDescriptor)
	return d, ok
}
