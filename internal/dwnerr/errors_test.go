package dwnerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onnwee/dwnd/internal/grant"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/protocol"
	"github.com/onnwee/dwnd/internal/reconcile"
)

func TestClassify_MapsKnownSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{reconcile.ErrConflict, Conflict},
		{reconcile.ErrImmutablePropertyChanged, ImmutablePropertyChanged},
		{reconcile.ErrRecordNotFound, NotFound},
		{protocol.ErrActionNotAllowed, ActionNotAllowed},
		{protocol.ErrSchemaMismatch, MalformedMessage},
		{grant.ErrGrantMismatch, GrantMismatch},
		{grant.ErrGrantExpired, Unauthorized},
		{messagestore.ErrNotFound, NotFound},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "classifying %v", c.err)
	}
}

func TestClassify_UnknownErrorDefaultsToTransient(t *testing.T) {
	assert.Equal(t, TransientStorageError, Classify(errors.New("boom")))
}

func TestStatusCode_MatchesSpecTable(t *testing.T) {
	assert.Equal(t, 400, StatusCode(MalformedMessage))
	assert.Equal(t, 400, StatusCode(IntegrityMismatch))
	assert.Equal(t, 400, StatusCode(ImmutablePropertyChanged))
	assert.Equal(t, 401, StatusCode(SignatureInvalid))
	assert.Equal(t, 401, StatusCode(Unauthorized))
	assert.Equal(t, 401, StatusCode(GrantMismatch))
	assert.Equal(t, 401, StatusCode(ActionNotAllowed))
	assert.Equal(t, 404, StatusCode(NotFound))
	assert.Equal(t, 409, StatusCode(Conflict))
	assert.Equal(t, 500, StatusCode(TransientStorageError))
}

func TestWrap_PreservesAlreadyClassifiedError(t *testing.T) {
	original := New(GrantMismatch, "scope mismatch")
	wrapped := Wrap(original, "ignored detail")
	assert.Same(t, original, wrapped)
}

func TestWrap_ClassifiesRawError(t *testing.T) {
	wrapped := Wrap(reconcile.ErrConflict, "write superseded")
	assert.Equal(t, Conflict, wrapped.Kind)
	assert.Equal(t, 409, wrapped.StatusCode())
	assert.ErrorIs(t, wrapped, reconcile.ErrConflict)
}
