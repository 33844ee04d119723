package engine_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/planguard-io/planguard/pkg/canonical"
	"github.com/planguard-io/planguard/pkg/engine"
	"github.com/planguard-io/planguard/pkg/numeric"
	"github.com/planguard-io/planguard/pkg/plan"
	"github.com/planguard-io/planguard/pkg/policy"
	"github.com/planguard-io/planguard/pkg/pricing"
	"github.com/planguard-io/planguard/pkg/report"
	"github.com/planguard-io/planguard/pkg/tiers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules(t *testing.T) *policy.Set {
	t.Helper()
	set, err := policy.NewSet([]policy.Rule{
		{ID: "deny-east-db", Match: `resource.region == "us-east-1" && resource.type == "aws_db_instance"`, Effect: policy.EffectDeny},
		{ID: "warn-east", Match: `resource.region == "us-east-1"`, Effect: policy.EffectWarn},
	})
	require.NoError(t, err)
	return set
}

func testPrices(t *testing.T) *pricing.Table {
	t.Helper()
	table, err := pricing.NewTable([]pricing.Entry{
		{Type: "aws_instance", Attribute: "instance_type", Rates: map[string]float64{
			"m5.large": 69.12,
			"t3.micro": 7.59,
		}},
		{Type: "aws_db_instance", Monthly: ptr(113.15)},
	})
	require.NoError(t, err)
	return table
}

func ptr(f float64) *float64 { return &f }

// syntheticRecords builds n resources with known prices; every third
// resource has no price-table entry.
func syntheticRecords(n int) []plan.ResourceRecord {
	records := make([]plan.ResourceRecord, 0, n)
	for i := 0; i < n; i++ {
		switch i % 3 {
		case 0:
			records = append(records, plan.ResourceRecord{
				Address:    fmt.Sprintf("aws_instance.web[%d]", i),
				Type:       "aws_instance",
				Region:     "eu-west-1",
				Attributes: map[string]any{"instance_type": "m5.large"},
			})
		case 1:
			records = append(records, plan.ResourceRecord{
				Address: fmt.Sprintf("aws_db_instance.db[%d]", i),
				Type:    "aws_db_instance",
				Region:  "us-east-1",
			})
		default:
			records = append(records, plan.ResourceRecord{
				Address: fmt.Sprintf("aws_eks_cluster.k8s[%d]", i),
				Type:    "aws_eks_cluster",
				Region:  "eu-west-1",
			})
		}
	}
	return records
}

func emitJSON(t *testing.T, rep *report.ExecutionReport) []byte {
	t.Helper()
	emitter, err := report.NewEmitter(report.FormatJSON)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, emitter.Emit(&buf, rep))
	return buf.Bytes()
}

// Identical input must produce byte-identical canonical output across
// 1, 2, and 8 worker threads.
func TestExecutor_OutputInvariantToWorkerCount(t *testing.T) {
	records := syntheticRecords(500)
	builtin := engine.NewBuiltinEvaluator(testRules(t), testPrices(t))

	var baseline []byte
	for _, workers := range []int{1, 2, 8} {
		x := engine.New(builtin, tiers.EditionPro, engine.WithWorkers(workers))
		rep, err := x.Run(context.Background(), records)
		require.NoError(t, err)

		out := emitJSON(t, rep)
		if baseline == nil {
			baseline = out
			continue
		}
		assert.Equal(t, canonical.HashBytes(baseline), canonical.HashBytes(out),
			"output for %d workers diverged", workers)
	}
}

// 500 synthetic resources with known prices and no license: totals
// must match a simple sequential reference implementation.
func TestExecutor_TotalsMatchSequentialReference(t *testing.T) {
	records := syntheticRecords(500)
	rules := testRules(t)
	prices := testPrices(t)
	builtin := engine.NewBuiltinEvaluator(rules, prices)

	// Reference: plain loop, no pool.
	var refTotal float64
	known, unknown := 0, 0
	for _, rec := range records {
		res := builtin.Evaluate(rec)
		if res.CostKnown {
			refTotal += res.MonthlyCost
			known++
		} else {
			unknown++
		}
	}
	refTotal = numeric.RoundCurrency(refTotal)

	x := engine.New(builtin, tiers.EditionFree, engine.WithWorkers(8))
	rep, err := x.Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, "free", rep.Edition)
	assert.Equal(t, refTotal, rep.Totals.MonthlyCost)
	assert.Equal(t, known, rep.Totals.KnownCosts)
	assert.Equal(t, unknown, rep.Totals.UnknownCosts)
	assert.Equal(t, 500, rep.Totals.ResourceCount)
}

func TestExecutor_ResultsKeepInputOrder(t *testing.T) {
	records := syntheticRecords(50)
	builtin := engine.NewBuiltinEvaluator(testRules(t), testPrices(t))
	x := engine.New(builtin, tiers.EditionPro, engine.WithWorkers(7))

	rep, err := x.Run(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, rep.Resources, 50)
	for i, res := range rep.Resources {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, records[i].Address, res.Address)
	}
}

func TestExecutor_MalformedRecordDoesNotAbortBatch(t *testing.T) {
	records := []plan.ResourceRecord{
		{Address: "aws_instance.ok", Type: "aws_instance", Attributes: map[string]any{"instance_type": "t3.micro"}},
		{Address: "resources[1]", Problem: "schema validation failed: missing type"},
		{Address: "aws_db_instance.ok", Type: "aws_db_instance"},
	}
	builtin := engine.NewBuiltinEvaluator(testRules(t), testPrices(t))
	x := engine.New(builtin, tiers.EditionFree)

	rep, err := x.Run(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, rep.Resources, 3)

	assert.Equal(t, report.VerdictError, rep.Resources[1].Verdict)
	assert.NotEmpty(t, rep.Resources[1].Error)
	assert.Equal(t, 1, rep.Totals.Errored)
	// The two well-formed resources were still evaluated.
	assert.True(t, rep.Resources[0].CostKnown)
	assert.True(t, rep.Resources[2].CostKnown)
}

func TestExecutor_UnknownCostIsMarkedNotZeroed(t *testing.T) {
	records := []plan.ResourceRecord{
		{Address: "aws_eks_cluster.main", Type: "aws_eks_cluster"},
	}
	builtin := engine.NewBuiltinEvaluator(testRules(t), testPrices(t))
	x := engine.New(builtin, tiers.EditionFree)

	rep, err := x.Run(context.Background(), records)
	require.NoError(t, err)
	assert.False(t, rep.Resources[0].CostKnown)
	assert.Equal(t, 1, rep.Totals.UnknownCosts)
	assert.Equal(t, 0, rep.Totals.KnownCosts)
}

// Two equally specific rules match one resource: the lexicographically
// smaller rule ID determines the verdict regardless of file order.
func TestExecutor_TieBreakDeterminesVerdict(t *testing.T) {
	ruleDeny := policy.Rule{ID: "aa.deny", Match: `resource.type == "aws_instance"`, Effect: policy.EffectDeny}
	ruleWarn := policy.Rule{ID: "zz.warn", Match: `resource.type == "aws_instance"`, Effect: policy.EffectWarn}
	records := []plan.ResourceRecord{{Address: "aws_instance.a", Type: "aws_instance"}}

	for _, order := range [][]policy.Rule{{ruleDeny, ruleWarn}, {ruleWarn, ruleDeny}} {
		set, err := policy.NewSet(order)
		require.NoError(t, err)
		x := engine.New(engine.NewBuiltinEvaluator(set, testPrices(t)), tiers.EditionFree)

		rep, err := x.Run(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, "aa.deny", rep.Resources[0].RuleID)
		assert.Equal(t, report.VerdictFail, rep.Resources[0].Verdict)
	}
}

func TestExecutor_FreeLimitAnnotatesWithoutTruncating(t *testing.T) {
	records := syntheticRecords(501)
	builtin := engine.NewBuiltinEvaluator(testRules(t), testPrices(t))
	x := engine.New(builtin, tiers.EditionFree, engine.WithWorkers(2))

	rep, err := x.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, rep.Resources, 501, "results are never truncated")
	require.Len(t, rep.Annotations, 1)
	assert.Contains(t, rep.Annotations[0], "501")
}

func TestExecutor_EmptyPlan(t *testing.T) {
	builtin := engine.NewBuiltinEvaluator(testRules(t), testPrices(t))
	x := engine.New(builtin, tiers.EditionFree)

	rep, err := x.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Resources)
	assert.Equal(t, 0.0, rep.Totals.MonthlyCost)
	assert.NotEmpty(t, rep.ReportDigest)
}
