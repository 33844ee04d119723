// Package canonical provides the deterministic serialization boundary:
// RFC 8785 (JCS) canonical JSON and canonical Markdown rendering.
//
// Every byte the tool emits passes through this package. Canonical form
// is unique: serializing a value, parsing it back, and re-serializing
// yields byte-identical output.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// SerializationError reports input the serializer cannot canonicalize
// deterministically. It is fatal to the single output operation that
// produced it and never corrupts already-computed results.
type SerializationError struct {
	Reason string
}

func (e *SerializationError) Error() string {
	return "serialization error: " + e.Reason
}

// MarshalCanonical returns the RFC 8785 canonical JSON representation
// of v.
//
// Strategy (three passes, matching the intermediate-decode approach):
//  1. Standard marshal so struct tags are respected. NaN and Inf are
//     rejected here — canonical JSON has no representation for them.
//  2. Decode into a generic value with json.Number to avoid float
//     round-trips, NFC-normalizing every string on the way.
//  3. jcs.Transform for final key ordering and ES6 number formatting.
func MarshalCanonical(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Reason: err.Error()}
	}

	var generic any
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, &SerializationError{Reason: fmt.Sprintf("intermediate decode failed: %v", err)}
	}

	generic = normalizeStrings(generic)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, &SerializationError{Reason: err.Error()}
	}

	out, err := jcs.Transform(buf.Bytes())
	if err != nil {
		return nil, &SerializationError{Reason: fmt.Sprintf("jcs transform failed: %v", err)}
	}
	return out, nil
}

// MarshalCanonicalString returns the canonical form as a string.
func MarshalCanonicalString(v any) (string, error) {
	b, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// normalizeStrings applies Unicode NFC to every string (keys included)
// so visually identical input encodings canonicalize to the same bytes.
func normalizeStrings(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []any:
		for i, elem := range t {
			t[i] = normalizeStrings(elem)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[norm.NFC.String(k)] = normalizeStrings(elem)
		}
		return out
	default:
		return t
	}
}
