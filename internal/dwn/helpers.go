package dwn

import "encoding/json"

// reshape converts v into out via a JSON marshal/unmarshal round trip,
// the same pattern internal/grant.reshape uses to tolerate both a live Go
// value and a map[string]any decoded from JSON (here: envelope.Verify's
// map[string]any payload becoming a typed AuthorizationPayload).
func reshape(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// asString reads a string out of an Indexes map value, defaulting to "".
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asBool reads a bool out of an Indexes map value, defaulting to false.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
