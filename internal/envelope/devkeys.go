package envelope

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/go-jose/go-jose/v3"
)

// Ed25519Signer is a single DID's signing key, held in process. It plays
// the same role for this core's own tenant keys that the teacher's
// JWTService plays for session tokens: one service-held key, identified by
// a version label, that the service signs with directly. Unlike JWTService
// it never produces compact JWT tokens — it only ever signs the detached
// JWS payloads envelope.Sign builds.
type Ed25519Signer struct {
	did     string
	keyID   string
	private ed25519.PrivateKey
}

// NewEd25519Signer generates a fresh Ed25519 signing key for did, labeled
// with keyID (e.g. "key-1").
func NewEd25519Signer(did, keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate ed25519 key: %w", err)
	}
	_ = pub
	return &Ed25519Signer{did: did, keyID: keyID, private: priv}, nil
}

func (s *Ed25519Signer) DID() string                        { return s.did }
func (s *Ed25519Signer) KeyID() string                      { return s.keyID }
func (s *Ed25519Signer) Algorithm() jose.SignatureAlgorithm { return jose.EdDSA }

func (s *Ed25519Signer) Sign(signingInput []byte) ([]byte, error) {
	return ed25519.Sign(s.private, signingInput), nil
}

// PublicVerificationMethod returns the VerificationMethod a Resolver should
// hand back for this signer's did#keyId.
func (s *Ed25519Signer) PublicVerificationMethod() *VerificationMethod {
	pub := s.private.Public().(ed25519.PublicKey)
	return &VerificationMethod{
		ID: s.did + "#" + s.keyID,
		JWK: jose.JSONWebKey{
			Key:       pub,
			KeyID:     s.keyID,
			Algorithm: string(jose.EdDSA),
		},
	}
}

// StaticResolver is an in-memory Resolver backed by a fixed set of known
// verification methods, keyed by "did#keyId". It is the default resolver
// wired in cmd/dwnd for local development and every unit test in this
// repository; a production deployment supplies a real DID-method-aware
// Resolver instead (the core never assumes StaticResolver's shape).
type StaticResolver struct {
	mu      sync.RWMutex
	methods map[string]*VerificationMethod
}

// NewStaticResolver creates an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{methods: make(map[string]*VerificationMethod)}
}

// Register adds a verification method, keyed by its own ID ("did#keyId").
func (r *StaticResolver) Register(vm *VerificationMethod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[vm.ID] = vm
}

// RegisterSigner is a convenience that registers an Ed25519Signer's public
// verification method.
func (r *StaticResolver) RegisterSigner(s *Ed25519Signer) {
	r.Register(s.PublicVerificationMethod())
}

func (r *StaticResolver) ResolveVerificationMethod(_ context.Context, did, keyID string) (*VerificationMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vm, ok := r.methods[did+"#"+keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return vm, nil
}
