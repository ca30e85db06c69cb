package dwn

import (
	"context"
	"fmt"

	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/envelope"
)

// verifySignatures is the VERIFY_SIGNATURES stage: cryptographically
// verifies authorization (and attestation, if present) against
// h.deps.Resolver, then decodes authorization's committed payload. It
// sets msg.Author (and msg.Attester) as a side effect, the only stage
// that does so, since author identity only exists once a signature has
// actually been checked.
func (h *Handlers) verifySignatures(ctx context.Context, msg *dwnmodel.Message) (*dwnmodel.AuthorizationPayload, error) {
	signers, payloadMap, err := envelope.Verify(ctx, msg.Authorization, h.deps.Resolver)
	if err != nil {
		return nil, fmt.Errorf("dwn: verify authorization: %w", err)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("dwn: authorization has no signers")
	}
	msg.Author = signers[0]

	payload, err := reshapeAuthorizationPayload(payloadMap)
	if err != nil {
		return nil, fmt.Errorf("dwn: decode authorization payload: %w", err)
	}

	if msg.Attestation != nil {
		attesters, _, err := envelope.Verify(ctx, msg.Attestation, h.deps.Resolver)
		if err != nil {
			return nil, fmt.Errorf("dwn: verify attestation: %w", err)
		}
		if len(attesters) > 0 {
			msg.Attester = attesters[0]
		}
	}

	return payload, nil
}

func reshapeAuthorizationPayload(m map[string]any) (*dwnmodel.AuthorizationPayload, error) {
	var payload dwnmodel.AuthorizationPayload
	if err := reshape(m, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
