// Package report defines the execution report — the ordered sequence
// of per-resource evaluation results plus aggregate totals — and its
// canonical emitters.
//
// Report content is a pure function of the evaluation inputs: no
// wall-clock timestamps, no host identifiers, nothing that varies
// between identical runs.
package report

// Verdict is the policy outcome for one resource.
type Verdict string

const (
	VerdictPass  Verdict = "PASS"
	VerdictWarn  Verdict = "WARN"
	VerdictFail  Verdict = "FAIL"
	VerdictError Verdict = "ERROR"
)

// EvaluationResult is the outcome for a single resource, tagged with
// the resource's stable input index.
type EvaluationResult struct {
	Index        int     `json:"index"`
	Address      string  `json:"address"`
	ResourceType string  `json:"resource_type,omitempty"`
	Verdict      Verdict `json:"verdict"`
	RuleID       string  `json:"rule_id,omitempty"`
	// CostKnown distinguishes a priced resource from an unknown one.
	// An unknown cost is never folded into totals as zero.
	CostKnown   bool    `json:"cost_known"`
	MonthlyCost float64 `json:"monthly_cost"`
	Error       string  `json:"error,omitempty"`
}

// Totals are the aggregates over the ordered result sequence.
type Totals struct {
	MonthlyCost   float64 `json:"monthly_cost"`
	KnownCosts    int     `json:"known_costs"`
	UnknownCosts  int     `json:"unknown_costs"`
	Passed        int     `json:"passed"`
	Warned        int     `json:"warned"`
	Failed        int     `json:"failed"`
	Errored       int     `json:"errored"`
	ResourceCount int     `json:"resource_count"`
}

// ExecutionReport is the final, ordered output of an evaluation run.
type ExecutionReport struct {
	Edition     string             `json:"edition"`
	Resources   []EvaluationResult `json:"resources"`
	Totals      Totals             `json:"totals"`
	Annotations []string           `json:"annotations,omitempty"`
	// ReportDigest is the canonical hash of the report content
	// (computed with this field empty), usable as a determinism check
	// across runs and platforms.
	ReportDigest string `json:"report_digest,omitempty"`
}
