package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

func threadDefinition() *dwnmodel.ProtocolDefinition {
	return &dwnmodel.ProtocolDefinition{
		Types: map[string]dwnmodel.ProtocolType{
			"thread": {Schema: "https://example.com/thread", DataFormats: []string{"application/json"}},
			"reply":  {Schema: "https://example.com/reply", DataFormats: []string{"application/json"}},
			"member": {Schema: "https://example.com/member", DataFormats: []string{"application/json"}},
		},
		Structure: map[string]dwnmodel.StructureNode{
			"thread": {
				Actions: []dwnmodel.ActionRule{
					{Who: dwnmodel.WhoAnyone, Can: dwnmodel.CanRead},
				},
				Children: map[string]dwnmodel.StructureNode{
					"reply": {
						Actions: []dwnmodel.ActionRule{
							{Who: dwnmodel.WhoAuthor, Of: "thread", Can: dwnmodel.CanWrite},
							{Who: dwnmodel.WhoRecipient, Of: "thread", Can: dwnmodel.CanWrite},
						},
					},
				},
			},
			"member": {
				Role: true,
				Actions: []dwnmodel.ActionRule{
					{Who: dwnmodel.WhoAnyone, Can: dwnmodel.CanWrite},
				},
			},
			"post": {
				Actions: []dwnmodel.ActionRule{
					{Who: dwnmodel.WhoRole, Of: "member", Can: dwnmodel.CanWrite},
				},
			},
		},
	}
}

func TestEvaluate_TenantAlwaysAllowed(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread",
		Schema:       "https://example.com/thread",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:alice",
		TenantDID:    "did:example:alice",
	})
	assert.NoError(t, err)
}

func TestEvaluate_WhoAnyoneAllows(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread",
		Schema:       "https://example.com/thread",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanRead,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
	})
	assert.NoError(t, err)
}

func TestEvaluate_WhoAuthorOfAncestor(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread/reply",
		Schema:       "https://example.com/reply",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
		Ancestors: []AncestorRecord{
			{ProtocolPath: "thread", Author: "did:example:bob", Recipient: "did:example:alice"},
		},
	})
	assert.NoError(t, err)
}

func TestEvaluate_WhoRecipientOfAncestor(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread/reply",
		Schema:       "https://example.com/reply",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:carol",
		TenantDID:    "did:example:alice",
		Ancestors: []AncestorRecord{
			{ProtocolPath: "thread", Author: "did:example:bob", Recipient: "did:example:carol"},
		},
	})
	assert.NoError(t, err)
}

func TestEvaluate_ActionNotAllowed(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread/reply",
		Schema:       "https://example.com/reply",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:mallory",
		TenantDID:    "did:example:alice",
		Ancestors: []AncestorRecord{
			{ProtocolPath: "thread", Author: "did:example:bob", Recipient: "did:example:carol"},
		},
	})
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestEvaluate_SchemaMismatch(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread",
		Schema:       "https://example.com/wrong-schema",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanRead,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
	})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEvaluate_RecipientPathTooLong(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "thread/reply",
		Schema:       "https://example.com/reply",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
		Ancestors:    nil,
	})
	assert.ErrorIs(t, err, ErrRecipientPathTooLong)
}

func TestEvaluate_AnyoneMayWriteRoleRecord(t *testing.T) {
	err := Evaluate(EvaluationInput{
		Definition:   threadDefinition(),
		ProtocolPath: "member",
		Schema:       "https://example.com/member",
		DataFormat:   "application/json",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
	})
	require.NoError(t, err)
}

func TestEvaluate_WhoRolePredicateChecksRoleGrants(t *testing.T) {
	def := threadDefinition()

	err := Evaluate(EvaluationInput{
		Definition:   def,
		ProtocolPath: "post",
		Schema:       "",
		DataFormat:   "",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
	})
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	err = Evaluate(EvaluationInput{
		Definition:   def,
		ProtocolPath: "post",
		Action:       dwnmodel.CanWrite,
		Author:       "did:example:bob",
		TenantDID:    "did:example:alice",
		RoleGrants: []RoleRecord{
			{RoleLabel: "member", Recipient: "did:example:bob"},
		},
	})
	require.NoError(t, err)
}
