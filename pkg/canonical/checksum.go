package canonical

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Checksum hashes the canonical form of v with SHA3-256 and returns lowercase hex.
func Checksum(v any) (string, error) {
	encoded, err := Encode(v)
	if err != nil {
		return "", err
	}
	return sumHex(encoded), nil
}

// ChecksumJSON is Checksum over raw JSON text.
func ChecksumJSON(input []byte) (string, error) {
	encoded, err := EncodeJSON(input)
	if err != nil {
		return "", err
	}
	return sumHex(encoded), nil
}

func sumHex(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Normalize converts v into the generic JSON data model (map[string]any,
// []any, string, bool, nil, json.Number) with numbers in canonical spelling.
// The result shares no memory with v.
func Normalize(v any) (any, error) {
	encoded, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return decode(encoded)
}

// NormalizeObject is Normalize for values that must be JSON objects.
func NormalizeObject(v any) (map[string]any, error) {
	normalized, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	obj, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", normalized)
	}
	return obj, nil
}

// Decode parses JSON text into the normalized data model.
func Decode(input []byte) (any, error) {
	encoded, err := EncodeJSON(input)
	if err != nil {
		return nil, err
	}
	return decode(encoded)
}

func decode(encoded []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal reports whether a and b have the same canonical form. Key order and
// number spelling (1 vs 1.0) do not matter.
func Equal(a, b any) bool {
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// IsEmpty reports whether v is null, an empty object, an empty array or an
// empty string.
func IsEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case map[string]any:
		return len(value) == 0
	case []any:
		return len(value) == 0
	default:
		return false
	}
}

// Clone deep-copies a normalized value.
func Clone(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = Clone(item)
		}
		return out
	default:
		return value
	}
}

// CloneObject deep-copies a normalized object; nil stays nil.
func CloneObject(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	return Clone(obj).(map[string]any)
}
