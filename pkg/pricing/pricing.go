// Package pricing provides the immutable price table used by the
// evaluation core. A missing entry is an explicit "unknown cost", never
// a silent zero, so aggregate uncertainty stays visible.
package pricing

import (
	"bytes"
	"fmt"
	"io"

	"github.com/planguard-io/planguard/pkg/numeric"
	"github.com/planguard-io/planguard/pkg/plan"
	"gopkg.in/yaml.v3"
)

// Entry prices one resource type. Either Monthly is set directly, or
// Attribute names a discriminator whose value selects a rate.
type Entry struct {
	Type      string             `yaml:"type"`
	Monthly   *float64           `yaml:"monthly,omitempty"`
	Attribute string             `yaml:"attribute,omitempty"`
	Rates     map[string]float64 `yaml:"rates,omitempty"`
}

// Table is an immutable price table keyed by resource type.
type Table struct {
	entries map[string]Entry
}

// Load reads a YAML price table. All rates are normalized at load time
// so no NaN or infinity can enter cost math.
func Load(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pricing: read failed: %w", err)
	}

	var doc struct {
		Prices []Entry `yaml:"prices"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pricing: invalid YAML: %w", err)
	}

	table := &Table{entries: make(map[string]Entry, len(doc.Prices))}
	for i, entry := range doc.Prices {
		if entry.Type == "" {
			return nil, fmt.Errorf("pricing: prices[%d]: missing type", i)
		}
		if _, dup := table.entries[entry.Type]; dup {
			return nil, fmt.Errorf("pricing: duplicate entry for type %q", entry.Type)
		}
		if entry.Monthly == nil && len(entry.Rates) == 0 {
			return nil, fmt.Errorf("pricing: prices[%d] (%s): needs monthly or rates", i, entry.Type)
		}
		if entry.Monthly != nil {
			normalized := numeric.Normalize(*entry.Monthly)
			entry.Monthly = &normalized
		}
		for k, v := range entry.Rates {
			entry.Rates[k] = numeric.Normalize(v)
		}
		table.entries[entry.Type] = entry
	}
	return table, nil
}

// NewTable builds a table from entries, applying the same validation
// as Load.
func NewTable(entries []Entry) (*Table, error) {
	doc := struct {
		Prices []Entry `yaml:"prices"`
	}{Prices: entries}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	return Load(bytes.NewReader(raw))
}

// Lookup resolves the monthly cost of a resource. The second return is
// false when the table has no answer — the caller must surface an
// unknown-cost marker, not zero.
func (t *Table) Lookup(rec plan.ResourceRecord) (float64, bool) {
	entry, ok := t.entries[rec.Type]
	if !ok {
		return 0, false
	}
	if entry.Attribute != "" {
		key, ok := rec.Attributes[entry.Attribute].(string)
		if !ok {
			return 0, false
		}
		rate, ok := entry.Rates[key]
		if !ok {
			return 0, false
		}
		return rate, true
	}
	if entry.Monthly != nil {
		return *entry.Monthly, true
	}
	return 0, false
}

// Len returns the number of priced resource types.
func (t *Table) Len() int { return len(t.entries) }
