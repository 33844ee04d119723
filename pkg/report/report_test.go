package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/planguard-io/planguard/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *report.ExecutionReport {
	return &report.ExecutionReport{
		Edition: "free",
		Resources: []report.EvaluationResult{
			{Index: 0, Address: "aws_instance.web", ResourceType: "aws_instance",
				Verdict: report.VerdictPass, CostKnown: true, MonthlyCost: 69.12},
			{Index: 1, Address: "aws_eks_cluster.main", ResourceType: "aws_eks_cluster",
				Verdict: report.VerdictWarn, RuleID: "warn-east"},
		},
		Totals: report.Totals{
			MonthlyCost: 69.12, KnownCosts: 1, UnknownCosts: 1,
			Passed: 1, Warned: 1, ResourceCount: 2,
		},
	}
}

func TestSeal_DigestIsStable(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	require.NoError(t, report.Seal(a))
	require.NoError(t, report.Seal(b))
	assert.Equal(t, a.ReportDigest, b.ReportDigest)
	assert.Len(t, a.ReportDigest, 64)

	// Re-sealing a sealed report yields the same digest.
	digest := a.ReportDigest
	require.NoError(t, report.Seal(a))
	assert.Equal(t, digest, a.ReportDigest)
}

func TestSeal_DigestChangesWithContent(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	b.Resources[0].MonthlyCost = 69.13
	require.NoError(t, report.Seal(a))
	require.NoError(t, report.Seal(b))
	assert.NotEqual(t, a.ReportDigest, b.ReportDigest)
}

func TestEmitter_JSONIsCanonicalAndParseable(t *testing.T) {
	emitter, err := report.NewEmitter(report.FormatJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, emitter.Emit(&buf, sampleReport()))

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.NotContains(t, out, "\r")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "free", parsed["edition"])

	// Key order is lexicographic, not struct order.
	assert.Less(t, strings.Index(out, `"edition"`), strings.Index(out, `"resources"`))
	assert.Less(t, strings.Index(out, `"resources"`), strings.Index(out, `"totals"`))
}

func TestEmitter_MarkdownRendersTableAndTotals(t *testing.T) {
	emitter, err := report.NewEmitter(report.FormatMarkdown)
	require.NoError(t, err)

	rep := sampleReport()
	require.NoError(t, report.Seal(rep))

	var buf bytes.Buffer
	require.NoError(t, emitter.Emit(&buf, rep))
	out := buf.String()

	assert.Contains(t, out, "| 0 | aws_instance.web | 69.12 | PASS | - |")
	assert.Contains(t, out, "| 1 | aws_eks_cluster.main | unknown | WARN | warn-east |")
	assert.Contains(t, out, "- Monthly cost (known resources): 69.12")
	assert.Contains(t, out, rep.ReportDigest)
	assert.NotContains(t, out, "\r")
}

func TestNewEmitter_RejectsUnknownFormat(t *testing.T) {
	_, err := report.NewEmitter("xml")
	require.Error(t, err)
}
