// Package serde provides the hybrid codec used to persist checkpoints:
// structured values are stored as JSON text, raw binary payloads as hex text.
package serde

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// bytesTag wraps binary values embedded inside structured data so they
// survive the JSON round trip as []byte instead of base64 strings.
const bytesTag = "__bytes__"

// SerializationError wraps any encode or decode failure. The payload that
// triggered it is never partially written by callers.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization %s failed: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Serializer converts values to and from their stored text form.
// Loads takes a binary hint for payloads that were stored as raw bytes;
// the hint does not propagate into nested fields, which are handled by
// tagging at encode time instead.
type Serializer interface {
	Dumps(v any) (string, error)
	Loads(s string, binary bool) (any, error)
}

// JSONBinary is the default Serializer. Top-level []byte values encode as
// hex text; everything else goes through JSON with embedded []byte values
// tagged for exact round trip. Binary fields buried inside opaque struct
// types are not tagged and fall back to encoding/json behavior.
type JSONBinary struct{}

var _ Serializer = JSONBinary{}

// Dumps encodes v to its stored text form.
func (JSONBinary) Dumps(v any) (string, error) {
	if b, ok := v.([]byte); ok {
		return hex.EncodeToString(b), nil
	}
	data, err := json.Marshal(tagBytes(v))
	if err != nil {
		return "", &SerializationError{Op: "encode", Err: err}
	}
	return string(data), nil
}

// Loads decodes stored text back into a value. With binary set the text is
// interpreted as hex-encoded raw bytes.
func (JSONBinary) Loads(s string, binary bool) (any, error) {
	if binary {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, &SerializationError{Op: "decode", Err: err}
		}
		return b, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &SerializationError{Op: "decode", Err: err}
	}
	out, err := untagBytes(v)
	if err != nil {
		return nil, &SerializationError{Op: "decode", Err: err}
	}
	return out, nil
}

// tagBytes walks maps and slices, replacing []byte leaves with a tagged
// hex wrapper. Other types are returned unchanged.
func tagBytes(v any) any {
	switch val := v.(type) {
	case []byte:
		return map[string]any{bytesTag: hex.EncodeToString(val)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = tagBytes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = tagBytes(item)
		}
		return out
	default:
		return v
	}
}

// untagBytes reverses tagBytes after JSON decoding.
func untagBytes(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if enc, ok := val[bytesTag].(string); ok && len(val) == 1 {
			return hex.DecodeString(enc)
		}
		for k, item := range val {
			decoded, err := untagBytes(item)
			if err != nil {
				return nil, err
			}
			val[k] = decoded
		}
		return val, nil
	case []any:
		for i, item := range val {
			decoded, err := untagBytes(item)
			if err != nil {
				return nil, err
			}
			val[i] = decoded
		}
		return val, nil
	default:
		return v, nil
	}
}
