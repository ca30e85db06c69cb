package codec

import "encoding/base64"

// Base64URLEncode encodes data as unpadded base64url, the encoding used for
// every JWS segment (protected header, detached payload, signature) in the
// message envelope.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes an unpadded base64url string.
func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
