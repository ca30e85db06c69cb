package envelope

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/go-jose/go-jose/v3"
)

// verifyWithJWK checks signature over signingInput using the key material
// carried in jwk, dispatching on alg. Only the algorithms this core's
// default signer implementations produce are supported; a resolver backed
// by a richer DID method can still reject anything it can't verify by
// returning an error from ResolveVerificationMethod.
func verifyWithJWK(jwk jose.JSONWebKey, alg jose.SignatureAlgorithm, signingInput, signature []byte) error {
	switch alg {
	case jose.EdDSA:
		pub, ok := jwk.Key.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("envelope: key is not ed25519 for alg %s", alg)
		}
		if !ed25519.Verify(pub, signingInput, signature) {
			return ErrSignatureInvalid
		}
		return nil
	case jose.ES256:
		pub, ok := jwk.Key.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("envelope: key is not ecdsa for alg %s", alg)
		}
		if len(signature) != 64 {
			return fmt.Errorf("envelope: malformed ES256 signature length %d", len(signature))
		}
		r := new(big.Int).SetBytes(signature[:32])
		s := new(big.Int).SetBytes(signature[32:])
		digest := sha256.Sum256(signingInput)
		if !ecdsa.Verify(pub, digest[:], r, s) {
			return ErrSignatureInvalid
		}
		return nil
	default:
		return fmt.Errorf("envelope: unsupported algorithm %s", alg)
	}
}
