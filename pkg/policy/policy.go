// Package policy implements the policy rule set: CEL match expressions
// over resource records, with deterministic resolution when several
// rules match one resource.
package policy

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Effect is what a matching rule does to a resource's verdict.
type Effect string

const (
	EffectWarn Effect = "warn"
	EffectDeny Effect = "deny"
)

// Rule is a single policy rule. Match is a CEL expression over the
// `resource` variable (address, type, region, attributes).
type Rule struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Match       string `yaml:"match" json:"match"`
	Effect      Effect `yaml:"effect" json:"effect"`
	// Specificity orders competing matches; when omitted it is derived
	// from the match expression (one point per conjunct).
	Specificity int `yaml:"specificity,omitempty" json:"specificity,omitempty"`
}

const ruleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "match", "effect"],
  "properties": {
    "id": {"type": "string", "pattern": "^[a-z0-9][a-z0-9._-]*$"},
    "description": {"type": "string"},
    "match": {"type": "string", "minLength": 1},
    "effect": {"enum": ["warn", "deny"]},
    "specificity": {"type": "integer", "minimum": 1}
  }
}`

var ruleSchema = jsonschema.MustCompileString("rule.schema.json", ruleSchemaJSON)

// Set is a compiled, immutable policy rule set. Rules are held sorted
// by ID so nothing downstream depends on source-file ordering.
type Set struct {
	rules    []Rule
	programs map[string]cel.Program
}

// NewSet compiles rules into an evaluable set. Rule IDs must be unique.
func NewSet(rules []Rule) (*Set, error) {
	env, err := cel.NewEnv(cel.Variable("resource", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("policy: CEL environment: %w", err)
	}

	set := &Set{
		rules:    make([]Rule, 0, len(rules)),
		programs: make(map[string]cel.Program, len(rules)),
	}
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if seen[rule.ID] {
			return nil, fmt.Errorf("policy: duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = true

		if rule.Specificity == 0 {
			rule.Specificity = 1 + strings.Count(rule.Match, "&&")
		}

		ast, issues := env.Compile(rule.Match)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy: rule %s: %w", rule.ID, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("policy: rule %s: %w", rule.ID, err)
		}

		set.rules = append(set.rules, rule)
		set.programs[rule.ID] = prg
	}

	sort.Slice(set.rules, func(i, j int) bool { return set.rules[i].ID < set.rules[j].ID })
	return set, nil
}

// Rules returns the rules in ID order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// Match evaluates every rule against the resource input and returns
// the winning rule, or nil when nothing matches.
//
// Resolution: highest specificity wins; at equal specificity the rule
// with the lexicographically smaller ID wins. Because rules are
// iterated in ID order and a later rule only replaces the winner on
// strictly greater specificity, the tie-break is structural.
func (s *Set) Match(resource map[string]any) *Rule {
	input := map[string]any{"resource": resource}

	var winner *Rule
	for i := range s.rules {
		rule := &s.rules[i]
		out, _, err := s.programs[rule.ID].Eval(input)
		if err != nil {
			// A rule that errors on this resource does not match it.
			continue
		}
		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}
		if winner == nil || rule.Specificity > winner.Specificity {
			winner = rule
		}
	}
	return winner
}

// LoadRules reads a YAML rule file and compiles it into a Set. Every
// rule entry is validated against the rule schema before compilation.
func LoadRules(r io.Reader) (*Set, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("policy: read failed: %w", err)
	}

	var doc struct {
		Rules []yaml.Node `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: invalid YAML: %w", err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, node := range doc.Rules {
		var generic map[string]any
		if err := node.Decode(&generic); err != nil {
			return nil, fmt.Errorf("policy: rules[%d]: %w", i, err)
		}
		if err := ruleSchema.Validate(generic); err != nil {
			return nil, fmt.Errorf("policy: rules[%d]: schema validation failed: %w", i, err)
		}
		var rule Rule
		if err := node.Decode(&rule); err != nil {
			return nil, fmt.Errorf("policy: rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return NewSet(rules)
}
