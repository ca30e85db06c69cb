// Package codec provides deterministic CBOR encoding and content-addressed
// identifiers (CIDs) for DWN messages. Every CID in this system is derived
// from the canonical CBOR encoding of its target object: two objects that
// encode to the same canonical bytes always produce the same CID, and
// objects that differ in any observable field never collide.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// ErrNonFiniteNumber is returned when a value contains a NaN or infinite
// float, which has no canonical CBOR representation.
var ErrNonFiniteNumber = errors.New("codec: non-finite number cannot be encoded")

// ErrNonStringKey is returned when a map intended for canonical encoding
// carries a non-string key.
var ErrNonStringKey = errors.New("codec: map keys must be strings")

// EncodingError wraps a failure encountered while canonicalizing or
// encoding a value.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// encMode is the shared canonical CBOR encoding mode: sorted map keys
// (bytewise, per RFC 8949 §4.2.1), shortest-form integers, and no
// indefinite-length items. This is the mode every CID and every stored
// message uses, so that canonical_cbor(x) == canonical_cbor(y) iff x and y
// are semantically identical.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical encode mode: %v", err))
	}
	return mode
}

// decMode is the decoding counterpart used when reading back stored
// messages; it rejects duplicate map keys the way a canonical reader must.
var decMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	opts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	mode, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building decode mode: %v", err))
	}
	return mode
}

// EncodeCanonical produces the deterministic CBOR encoding of v after
// scrubbing it per the codec contract: non-finite floats are rejected,
// nil-valued map entries are removed rather than encoded as CBOR null, and
// non-string map keys are rejected.
//
// v is first normalized through a JSON round-trip. This lets callers pass
// either a plain map[string]any/[]any tree or a typed Go struct (a
// descriptor, a payload) and get the same canonical bytes either way, keyed
// by each struct's `json` tags rather than by Go field names — the wire
// format these CIDs must agree with is JSON (spec §6), so field naming
// follows the JSON tags, not CBOR struct-tag conventions.
func EncodeCanonical(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, &EncodingError{Op: "normalize", Err: err}
	}
	scrubbed, err := scrub(normalized)
	if err != nil {
		return nil, &EncodingError{Op: "scrub", Err: err}
	}
	out, err := encMode.Marshal(scrubbed)
	if err != nil {
		return nil, &EncodingError{Op: "marshal", Err: err}
	}
	return out, nil
}

// normalize converts v to the map[string]any/[]any/scalar shape scrub
// expects, via a JSON marshal/unmarshal round-trip.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.(type) {
	case map[string]any, map[any]any, []any, string, bool, nil:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode decodes canonical CBOR bytes into v.
func Decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return &EncodingError{Op: "unmarshal", Err: err}
	}
	return nil
}

// DecodeInto decodes canonical CBOR bytes produced by EncodeCanonical into
// a typed Go struct. Since EncodeCanonical keys its output by each
// struct's json tags (not Go field names or cbor tags), DecodeInto mirrors
// that by decoding into a generic map/slice shape first and then
// JSON-round-tripping into v, rather than unmarshaling CBOR directly into
// v's fields.
func DecodeInto(data []byte, v any) error {
	var generic any
	if err := decMode.Unmarshal(data, &generic); err != nil {
		return &EncodingError{Op: "unmarshal", Err: err}
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return &EncodingError{Op: "intermediate-marshal", Err: err}
	}
	if err := json.Unmarshal(asJSON, v); err != nil {
		return &EncodingError{Op: "intermediate-unmarshal", Err: err}
	}
	return nil
}

// scrub walks a value built from the usual JSON-ish building blocks
// (map[string]any, []any, string, bool, numeric types, nil) and returns a
// copy with nil map values dropped and every float checked for finiteness.
// Non-string map keys surface as ErrNonStringKey.
func scrub(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val := t[k]
			if val == nil {
				continue
			}
			sv, err := scrub(val)
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil
	case map[any]any:
		return nil, ErrNonStringKey
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			sv, err := scrub(item)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil, ErrNonFiniteNumber
		}
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, ErrNonFiniteNumber
		}
		return t, nil
	default:
		return v, nil
	}
}
