// Package envelope builds and verifies the general-JWS-shaped signature
// envelopes that wrap every DWN message's authorization and (optional)
// attestation blocks. Signing is delegated to injected Signer
// implementations and key lookup to an injected Resolver; Verify checks
// each signature itself against the resolved key (EdDSA and ES256, see
// verify.go). devkeys.go adds an in-process Ed25519 signer and a static
// resolver for local development and tests.
package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v3"

	"github.com/onnwee/dwnd/internal/codec"
)

// Failure kinds, matched against with errors.Is.
var (
	// ErrSignatureInvalid is returned when a signature fails cryptographic
	// verification.
	ErrSignatureInvalid = errors.New("envelope: signature invalid")
	// ErrSignerUnresolvable is returned when the resolver cannot produce a
	// verification method for a signature's kid.
	ErrSignerUnresolvable = errors.New("envelope: signer unresolvable")
	// ErrKeyNotFound is returned when a resolved DID document has no
	// verification method matching the requested key ID.
	ErrKeyNotFound = errors.New("envelope: key not found")
	// ErrMalformedKid is returned when a protected header's kid is not of
	// the form "did#keyId".
	ErrMalformedKid = errors.New("envelope: malformed kid")
	// ErrNoSignatures is returned when an envelope carries zero signatures.
	ErrNoSignatures = errors.New("envelope: no signatures")
)

// Signature is one entry of a general-JWS signatures array: a protected
// header and the signature bytes, both base64url-encoded per spec §6.
type Signature struct {
	Protected string `json:"protected"`
	Signature string `json:"signature"`
}

// SignedObject is the wire shape of spec §6's `authorization` and
// `attestation` blocks: a JSON-serialized, base64url-encoded payload
// committing to a descriptor (and related CIDs), signed by one or more
// parties.
type SignedObject struct {
	Signatures []Signature `json:"signatures"`
	Payload    string      `json:"payload"`
}

// protectedHeader is the JSON structure base64url-encoded into
// Signature.Protected. kid identifies the signer as "<did>#<keyId>".
type protectedHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Signer produces a detached JWS signature over a signing input
// (protected-header || "." || payload, both base64url) on behalf of one
// DID's verification method.
type Signer interface {
	DID() string
	KeyID() string
	Algorithm() jose.SignatureAlgorithm
	Sign(signingInput []byte) ([]byte, error)
}

// VerificationMethod is the subset of a resolved DID document entry this
// package needs: the key material, wrapped in a JSONWebKey so any JOSE
// algorithm can be tested against it uniformly.
type VerificationMethod struct {
	ID  string
	JWK jose.JSONWebKey
}

// Resolver resolves a DID + key ID to the verification method that should
// validate a signature claiming that kid. DID document resolution itself
// is out of scope for this core; Resolver is the seam.
type Resolver interface {
	ResolveVerificationMethod(ctx context.Context, did, keyID string) (*VerificationMethod, error)
}

// Sign builds a SignedObject committing to payload, signed once per
// entry in signers. payload is marshaled to canonical JSON (not CBOR —
// the wire envelope is JSON per spec §6) before base64url encoding.
func Sign(payload map[string]any, signers []Signer) (*SignedObject, error) {
	if len(signers) == 0 {
		return nil, ErrNoSignatures
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	payloadB64 := codec.Base64URLEncode(payloadJSON)

	sigs := make([]Signature, 0, len(signers))
	for _, signer := range signers {
		header := protectedHeader{
			Alg: string(signer.Algorithm()),
			Kid: signer.DID() + "#" + signer.KeyID(),
		}
		headerJSON, err := json.Marshal(header)
		if err != nil {
			return nil, fmt.Errorf("envelope: marshal protected header: %w", err)
		}
		protectedB64 := codec.Base64URLEncode(headerJSON)

		signingInput := []byte(protectedB64 + "." + payloadB64)
		sigBytes, err := signer.Sign(signingInput)
		if err != nil {
			return nil, fmt.Errorf("envelope: sign: %w", err)
		}

		sigs = append(sigs, Signature{
			Protected: protectedB64,
			Signature: codec.Base64URLEncode(sigBytes),
		})
	}

	return &SignedObject{Signatures: sigs, Payload: payloadB64}, nil
}

// Verify validates every signature in obj against the DID document(s)
// resolved via resolver, and returns the set of signer DIDs plus the
// decoded payload. Verification fails closed: any unresolvable signer,
// missing key, or invalid signature rejects the whole object.
func Verify(ctx context.Context, obj *SignedObject, resolver Resolver) (signerDIDs []string, payload map[string]any, err error) {
	if obj == nil || len(obj.Signatures) == 0 {
		return nil, nil, ErrNoSignatures
	}

	payloadBytes, err := codec.Base64URLDecode(obj.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("envelope: decode payload: %w", err)
	}

	dids := make([]string, 0, len(obj.Signatures))
	for _, sig := range obj.Signatures {
		headerBytes, err := codec.Base64URLDecode(sig.Protected)
		if err != nil {
			return nil, nil, fmt.Errorf("envelope: decode protected header: %w", err)
		}
		var header protectedHeader
		if err := json.Unmarshal(headerBytes, &header); err != nil {
			return nil, nil, fmt.Errorf("envelope: unmarshal protected header: %w", err)
		}

		did, keyID, ok := splitKid(header.Kid)
		if !ok {
			return nil, nil, ErrMalformedKid
		}

		vm, err := resolver.ResolveVerificationMethod(ctx, did, keyID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s#%s: %v", ErrSignerUnresolvable, did, keyID, err)
		}
		if vm == nil {
			return nil, nil, fmt.Errorf("%w: %s#%s", ErrKeyNotFound, did, keyID)
		}

		sigBytes, err := codec.Base64URLDecode(sig.Signature)
		if err != nil {
			return nil, nil, fmt.Errorf("envelope: decode signature: %w", err)
		}

		signingInput := []byte(sig.Protected + "." + obj.Payload)
		if err := verifyWithJWK(vm.JWK, jose.SignatureAlgorithm(header.Alg), signingInput, sigBytes); err != nil {
			return nil, nil, fmt.Errorf("%w: %s#%s: %v", ErrSignatureInvalid, did, keyID, err)
		}

		dids = append(dids, did)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payloadBytes, &decoded); err != nil {
		return nil, nil, fmt.Errorf("envelope: unmarshal payload: %w", err)
	}

	return dids, decoded, nil
}

func splitKid(kid string) (did, keyID string, ok bool) {
	idx := strings.IndexByte(kid, '#')
	if idx < 0 {
		return "", "", false
	}
	return kid[:idx], kid[idx+1:], true
}
