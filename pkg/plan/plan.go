// Package plan defines the normalized resource sequence the evaluation
// core consumes. Upstream infrastructure parsers (Terraform,
// CloudFormation, CDK) are collaborators that produce this form; this
// package is the narrow interface they feed.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/planguard-io/planguard/pkg/numeric"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ResourceRecord is a single normalized infrastructure unit. Records
// are immutable inputs; their position in the input sequence is their
// stable evaluation index.
type ResourceRecord struct {
	Address    string         `json:"address"`
	Type       string         `json:"type"`
	Region     string         `json:"region,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	// Problem is non-empty for a malformed record. Malformed records
	// are carried through rather than dropped so the evaluator can
	// emit a per-resource error result without aborting the batch.
	Problem string `json:"-"`
}

// Malformed reports whether the record failed ingestion validation.
func (r ResourceRecord) Malformed() bool { return r.Problem != "" }

const planSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["resources"],
  "properties": {
    "format_version": {"type": "string"},
    "resources": {"type": "array"}
  }
}`

const resourceSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["address", "type"],
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "type": {"type": "string", "minLength": 1},
    "region": {"type": "string"},
    "attributes": {"type": "object"}
  }
}`

var (
	planSchema     = jsonschema.MustCompileString("plan.schema.json", planSchemaJSON)
	resourceSchema = jsonschema.MustCompileString("resource.schema.json", resourceSchemaJSON)
)

// LoadResources reads a normalized plan document and returns its
// resource sequence in input order.
//
// The envelope must validate; individual malformed resources do not
// fail the load — they come back with Problem set so evaluation can
// record a per-resource error and continue.
func LoadResources(r io.Reader) ([]ResourceRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("plan: read failed: %w", err)
	}

	var doc any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("plan: invalid JSON: %w", err)
	}
	if err := planSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("plan: schema validation failed: %w", err)
	}

	elements := doc.(map[string]any)["resources"].([]any)
	records := make([]ResourceRecord, 0, len(elements))
	for i, elem := range elements {
		records = append(records, decodeResource(i, elem))
	}
	return records, nil
}

func decodeResource(index int, elem any) ResourceRecord {
	if err := resourceSchema.Validate(elem); err != nil {
		return ResourceRecord{
			Address: fmt.Sprintf("resources[%d]", index),
			Problem: fmt.Sprintf("schema validation failed: %v", err),
		}
	}

	obj := elem.(map[string]any)
	rec := ResourceRecord{
		Address: obj["address"].(string),
		Type:    obj["type"].(string),
	}
	if region, ok := obj["region"].(string); ok {
		rec.Region = region
	}
	if attrs, ok := obj["attributes"].(map[string]any); ok {
		normalized, err := numeric.NormalizeDeep(normalizeNumbers(attrs))
		if err != nil {
			rec.Problem = fmt.Sprintf("attribute normalization failed: %v", err)
			return rec
		}
		rec.Attributes = normalized.(map[string]any)
	}
	return rec
}

// normalizeNumbers converts json.Number leaves to float64 so attribute
// access is uniform downstream. Conversion failures keep the raw string
// form rather than inventing a value.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i, elem := range t {
			t[i] = normalizeNumbers(elem)
		}
		return t
	case map[string]any:
		for k, elem := range t {
			t[k] = normalizeNumbers(elem)
		}
		return t
	default:
		return t
	}
}
