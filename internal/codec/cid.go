package codec

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"
)

// codecPrefix is a single byte tagging every CID produced by this package
// as "canonical-CBOR, sha2-256", analogous to a multicodec prefix. It has
// no meaning beyond distinguishing this system's CIDs from an arbitrary
// base32 string; there is exactly one codec in this system, so the prefix
// never varies.
const codecPrefix = 0x01

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// CID computes the content identifier of v: canonical CBOR encode, then
// sha2-256 over a one-byte codec prefix followed by the canonical bytes, then
// lowercase unpadded base32 (RFC 4648).
//
// cid(x) == cid(y) iff canonical_cbor(x) == canonical_cbor(y).
func CID(v any) (string, error) {
	encoded, err := EncodeCanonical(v)
	if err != nil {
		return "", err
	}
	return CIDFromBytes(encoded), nil
}

// CIDFromBytes computes the CID of already-canonicalized bytes directly,
// used when the caller has a raw byte stream (e.g. a RecordsWrite's data
// payload) rather than a structured value to encode.
func CIDFromBytes(canonical []byte) string {
	sum := sha256.Sum256(append([]byte{codecPrefix}, canonical...))
	return strings.ToLower(b32.EncodeToString(sum[:]))
}

// MustCID is CID but panics on error; used only for package-internal
// constants and tests where the input is known-good.
func MustCID(v any) string {
	id, err := CID(v)
	if err != nil {
		panic(err)
	}
	return id
}
