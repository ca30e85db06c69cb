package grant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

func baseInput() Input {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		Now:       now,
		Tenant:    "did:example:alice",
		Author:    "did:example:bob",
		Interface: dwnmodel.InterfaceRecords,
		Method:    dwnmodel.MethodWrite,
		Grant: &Record{
			GrantID:     "grant-1",
			GrantedBy:   "did:example:alice",
			GrantedTo:   "did:example:bob",
			GrantedFor:  "did:example:alice",
			DateExpires: now.Add(time.Hour),
			Scope: dwnmodel.GrantScope{
				Interface: dwnmodel.InterfaceRecords,
				Method:    dwnmodel.MethodWrite,
			},
		},
	}
}

func TestAuthorize_NoGrantFails(t *testing.T) {
	in := baseInput()
	in.Grant = nil
	assert.ErrorIs(t, Authorize(in), ErrGrantNotFound)
}

func TestAuthorize_UnrestrictedGrantSucceeds(t *testing.T) {
	assert.NoError(t, Authorize(baseInput()))
}

func TestAuthorize_IdentityMismatch(t *testing.T) {
	in := baseInput()
	in.Grant.GrantedTo = "did:example:carol"
	assert.ErrorIs(t, Authorize(in), ErrGrantIdentityMismatch)
}

func TestAuthorize_Expired(t *testing.T) {
	in := baseInput()
	in.Now = in.Grant.DateExpires.Add(time.Second)
	assert.ErrorIs(t, Authorize(in), ErrGrantExpired)
}

func TestAuthorize_Revoked(t *testing.T) {
	in := baseInput()
	in.Revoked = true
	assert.ErrorIs(t, Authorize(in), ErrGrantRevoked)
}

func TestAuthorize_InterfaceMethodMismatch(t *testing.T) {
	in := baseInput()
	in.Method = dwnmodel.MethodDelete
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)
}

func TestAuthorize_ProtocolScopedGrantRejectsOtherProtocol(t *testing.T) {
	in := baseInput()
	in.Grant.Scope.Protocol = "https://example.com/thread"
	in.Target = &TargetScope{Protocol: "https://example.com/other"}
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)
}

func TestAuthorize_ProtocolScopedGrantAllowsMatchingProtocol(t *testing.T) {
	in := baseInput()
	in.Grant.Scope.Protocol = "https://example.com/thread"
	in.Target = &TargetScope{Protocol: "https://example.com/thread", ProtocolPath: "thread/reply"}
	assert.NoError(t, Authorize(in))
}

func TestAuthorize_ContextIDMustBePrefixed(t *testing.T) {
	in := baseInput()
	in.Grant.Scope.Protocol = "https://example.com/thread"
	in.Grant.Scope.ContextID = "ctx-1"
	in.Target = &TargetScope{Protocol: "https://example.com/thread", ContextID: "ctx-1/reply-9"}
	assert.NoError(t, Authorize(in))

	in.Target.ContextID = "ctx-2/reply-9"
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)
}

func TestAuthorize_ProtocolPathMustMatchExactly(t *testing.T) {
	in := baseInput()
	in.Grant.Scope.Protocol = "https://example.com/thread"
	in.Grant.Scope.ProtocolPath = "thread/reply"
	in.Target = &TargetScope{Protocol: "https://example.com/thread", ProtocolPath: "thread"}
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)
}

func TestAuthorize_NonProtocolTargetChecksSchema(t *testing.T) {
	in := baseInput()
	in.Grant.Scope.Schema = "https://example.com/note"
	in.Target = &TargetScope{Schema: "https://example.com/other"}
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)

	in.Target.Schema = "https://example.com/note"
	assert.NoError(t, Authorize(in))
}

func TestAuthorize_PublicationRequired(t *testing.T) {
	in := baseInput()
	in.Grant.Conditions.Publication = dwnmodel.PublicationRequired
	unpublished := false
	in.Published = &unpublished
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)

	published := true
	in.Published = &published
	assert.NoError(t, Authorize(in))
}

func TestAuthorize_PublicationProhibited(t *testing.T) {
	in := baseInput()
	in.Grant.Conditions.Publication = dwnmodel.PublicationProhibited
	published := true
	in.Published = &published
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)

	unpublished := false
	in.Published = &unpublished
	assert.NoError(t, Authorize(in))
}

func TestAuthorize_QuerySubscribeChecksFilterProtocol(t *testing.T) {
	in := baseInput()
	in.Method = dwnmodel.MethodQuery
	in.Grant.Scope.Method = dwnmodel.MethodQuery
	in.Grant.Scope.Protocol = "https://example.com/thread"
	in.Target = nil
	in.FilterProtocol = "https://example.com/other"
	assert.ErrorIs(t, Authorize(in), ErrGrantMismatch)

	in.FilterProtocol = "https://example.com/thread"
	assert.NoError(t, Authorize(in))
}

func TestAuthorize_UnrestrictedQueryGrantAllowsAnyFilter(t *testing.T) {
	in := baseInput()
	in.Method = dwnmodel.MethodQuery
	in.Grant.Scope.Method = dwnmodel.MethodQuery
	in.Target = nil
	in.FilterProtocol = "https://example.com/whatever"
	assert.NoError(t, Authorize(in))
}
