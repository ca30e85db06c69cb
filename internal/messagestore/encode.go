// Package messagestore implements the MessageStore component of spec
// §4.3: content-addressed persistence of encoded messages plus the
// secondary-index range/equality query engine built over them.
package messagestore

import (
	"fmt"
	"time"
)

// maxSafeInteger mirrors the reference implementation's JS
// Number.MAX_SAFE_INTEGER, used as the offset that maps negative numbers
// into the same lexicographically-sortable positive range as everything
// else (spec §4.3: "'!' for negatives mapped to MAX_SAFE_INTEGER +
// value").
const maxSafeInteger = 9007199254740991

// EncodeSortable renders v as a lexicographically sortable string whose
// ordering matches v's natural ordering within its type. A one-character
// type tag is prepended so that, e.g., the boolean true and the string
// "true" — which the spec's testable guarantees require to stay distinct
// — never compare equal.
func EncodeSortable(v any) (string, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return "b:true", nil
		}
		return "b:false", nil
	case string:
		return "s:" + t, nil
	case time.Time:
		return "s:" + t.UTC().Format(dateLayout), nil
	case int:
		return "n:" + encodeNumber(float64(t)), nil
	case int32:
		return "n:" + encodeNumber(float64(t)), nil
	case int64:
		return "n:" + encodeNumber(float64(t)), nil
	case float32:
		return "n:" + encodeNumber(float64(t)), nil
	case float64:
		return "n:" + encodeNumber(t), nil
	default:
		return "", fmt.Errorf("messagestore: unsupported indexable value type %T", v)
	}
}

// dateLayout is spec §4.3's ISO-8601 microsecond-precision date encoding.
const dateLayout = "2006-01-02T15:04:05.000000Z07:00"

// encodeNumber implements the fixed-width sign-prefixed numeric encoding
// of spec §4.3: negatives are shifted into the positive range by adding
// maxSafeInteger and tagged with a leading "!" (which sorts before any
// digit), positives are left-padded.
func encodeNumber(f float64) string {
	if f < 0 {
		shifted := maxSafeInteger + f
		return "!" + fmt.Sprintf("%020.6f", shifted)
	}
	return fmt.Sprintf("%020.6f", f)
}

// valueKind classifies a sortable-encoded string back to its type tag, so
// range-clause comparisons never compare across incompatible types.
func valueKind(encoded string) byte {
	if len(encoded) == 0 {
		return 0
	}
	return encoded[0]
}
