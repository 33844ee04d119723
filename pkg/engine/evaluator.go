// Package engine implements the deterministic executor: parallel
// evaluation of resource records against the policy set and cost
// model, with output invariant to the degree of parallelism.
package engine

import (
	"context"
	"encoding/json"

	"github.com/planguard-io/planguard/pkg/canonical"
	"github.com/planguard-io/planguard/pkg/numeric"
	"github.com/planguard-io/planguard/pkg/plan"
	"github.com/planguard-io/planguard/pkg/policy"
	"github.com/planguard-io/planguard/pkg/pricing"
	"github.com/planguard-io/planguard/pkg/report"
	"github.com/planguard-io/planguard/pkg/trust"
)

// Evaluator is the capability interface behind which the built-in and
// verified-premium algorithms sit. The implementation is selected once
// at startup, before the worker pool exists — never per resource.
type Evaluator interface {
	Evaluate(rec plan.ResourceRecord) report.EvaluationResult
}

// builtinEvaluator is the always-available algorithm: price lookup plus
// policy match with deterministic tie-break.
type builtinEvaluator struct {
	rules  *policy.Set
	prices *pricing.Table
}

// NewBuiltinEvaluator returns the built-in evaluation algorithm.
func NewBuiltinEvaluator(rules *policy.Set, prices *pricing.Table) Evaluator {
	return &builtinEvaluator{rules: rules, prices: prices}
}

func (e *builtinEvaluator) Evaluate(rec plan.ResourceRecord) report.EvaluationResult {
	if rec.Malformed() {
		return report.EvaluationResult{
			Address: rec.Address,
			Verdict: report.VerdictError,
			Error:   rec.Problem,
		}
	}

	res := report.EvaluationResult{
		Address:      rec.Address,
		ResourceType: rec.Type,
		Verdict:      report.VerdictPass,
	}

	if cost, ok := e.prices.Lookup(rec); ok {
		res.CostKnown = true
		res.MonthlyCost = numeric.RoundCurrency(cost)
	}

	if winner := e.rules.Match(ruleInput(rec)); winner != nil {
		res.RuleID = winner.ID
		switch winner.Effect {
		case policy.EffectDeny:
			res.Verdict = report.VerdictFail
		case policy.EffectWarn:
			res.Verdict = report.VerdictWarn
		}
	}
	return res
}

func ruleInput(rec plan.ResourceRecord) map[string]any {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"address":    rec.Address,
		"type":       rec.Type,
		"region":     rec.Region,
		"attributes": attrs,
	}
}

// moduleEvaluator wraps a verified premium module. The module receives
// the canonical record on stdin and must answer with an evaluation
// result on stdout. Any failure degrades that single resource to the
// built-in result — a bad module invocation never yields a crash or a
// partial report.
type moduleEvaluator struct {
	module   *trust.VerifiedModule
	fallback Evaluator
}

// NewModuleEvaluator returns the premium algorithm backed by a
// verified module, with the built-in algorithm as per-resource
// fallback.
func NewModuleEvaluator(module *trust.VerifiedModule, fallback Evaluator) Evaluator {
	return &moduleEvaluator{module: module, fallback: fallback}
}

func (e *moduleEvaluator) Evaluate(rec plan.ResourceRecord) report.EvaluationResult {
	if rec.Malformed() {
		return e.fallback.Evaluate(rec)
	}

	input, err := canonical.MarshalCanonical(rec)
	if err != nil {
		return e.fallback.Evaluate(rec)
	}

	out, err := e.module.Invoke(context.Background(), input)
	if err != nil || len(out) == 0 {
		return e.fallback.Evaluate(rec)
	}

	var res report.EvaluationResult
	if err := json.Unmarshal(out, &res); err != nil || !validVerdict(res.Verdict) {
		return e.fallback.Evaluate(rec)
	}

	// The module's numbers pass the same normalization boundary as
	// everything else.
	res.Address = rec.Address
	res.ResourceType = rec.Type
	res.MonthlyCost = numeric.RoundCurrency(res.MonthlyCost)
	return res
}

func validVerdict(v report.Verdict) bool {
	switch v {
	case report.VerdictPass, report.VerdictWarn, report.VerdictFail, report.VerdictError:
		return true
	}
	return false
}
