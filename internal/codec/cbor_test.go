package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCanonical_Deterministic(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": 1, "x": 2}}
	b := map[string]any{"c": map[string]any{"x": 2, "y": 1}, "a": 1, "b": 2}

	encA, err := EncodeCanonical(a)
	require.NoError(t, err)
	encB, err := EncodeCanonical(b)
	require.NoError(t, err)

	assert.Equal(t, encA, encB, "key order must not affect canonical encoding")
}

func TestEncodeCanonical_DropsNilValues(t *testing.T) {
	withNil := map[string]any{"a": 1, "b": nil}
	without := map[string]any{"a": 1}

	encWithNil, err := EncodeCanonical(withNil)
	require.NoError(t, err)
	encWithout, err := EncodeCanonical(without)
	require.NoError(t, err)

	assert.Equal(t, encWithout, encWithNil)
}

func TestEncodeCanonical_RejectsNonFiniteFloat(t *testing.T) {
	_, err := EncodeCanonical(map[string]any{"a": math.NaN()})
	assert.ErrorIs(t, err, ErrNonFiniteNumber)

	_, err = EncodeCanonical(map[string]any{"a": math.Inf(1)})
	assert.ErrorIs(t, err, ErrNonFiniteNumber)
}

func TestEncodeCanonical_RejectsNonStringKeys(t *testing.T) {
	_, err := EncodeCanonical(map[any]any{1: "x"})
	assert.ErrorIs(t, err, ErrNonStringKey)
}

func TestCID_Deterministic(t *testing.T) {
	obj := map[string]any{"descriptor": "x", "author": "did:example:alice"}

	cidA, err := CID(obj)
	require.NoError(t, err)
	cidB, err := CID(obj)
	require.NoError(t, err)

	assert.Equal(t, cidA, cidB)
	assert.NotEmpty(t, cidA)
}

func TestCID_DiffersOnContent(t *testing.T) {
	a := map[string]any{"x": 1}
	b := map[string]any{"x": 2}

	cidA := MustCID(a)
	cidB := MustCID(b)

	assert.NotEqual(t, cidA, cidB)
}

func TestDecodeInto_RoundTripsTypedStruct(t *testing.T) {
	type grant struct {
		GrantedBy string `json:"grantedBy"`
		GrantedTo string `json:"grantedTo"`
	}

	original := grant{GrantedBy: "did:example:alice", GrantedTo: "did:example:bob"}
	encoded, err := EncodeCanonical(original)
	require.NoError(t, err)

	var decoded grant
	require.NoError(t, DecodeInto(encoded, &decoded))
	assert.Equal(t, original, decoded)
}

func TestCIDFromBytes_IsLowerBase32NoPadding(t *testing.T) {
	cid := CIDFromBytes([]byte("hello"))
	for _, r := range cid {
		assert.True(t, (r >= 'a' && r <= 'z') || (r >= '2' && r <= '7'), "unexpected char %q", r)
	}
}
