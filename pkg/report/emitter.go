package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/planguard-io/planguard/pkg/canonical"
	"github.com/planguard-io/planguard/pkg/numeric"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Emitter writes an ExecutionReport in canonical form.
type Emitter struct {
	Format   Format
	renderer *canonical.MarkdownRenderer
}

// NewEmitter creates an emitter for the given format.
func NewEmitter(format Format) (*Emitter, error) {
	switch format {
	case FormatJSON, FormatMarkdown:
		return &Emitter{Format: format, renderer: canonical.NewMarkdownRenderer()}, nil
	default:
		return nil, fmt.Errorf("report: unknown format %q", format)
	}
}

// Seal computes and sets the report digest. The digest covers the
// report with the digest field empty, so it can be recomputed by any
// consumer.
func Seal(rep *ExecutionReport) error {
	rep.ReportDigest = ""
	digest, err := canonical.Hash(rep)
	if err != nil {
		return err
	}
	rep.ReportDigest = digest
	return nil
}

// Emit writes the report. A SerializationError is fatal to this single
// output operation only; the in-memory report stays intact.
func (e *Emitter) Emit(w io.Writer, rep *ExecutionReport) error {
	switch e.Format {
	case FormatMarkdown:
		doc, err := e.renderMarkdown(rep)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, doc)
		return err
	default:
		out, err := canonical.MarshalCanonical(rep)
		if err != nil {
			return err
		}
		out = append(out, '\n')
		_, err = w.Write(out)
		return err
	}
}

func (e *Emitter) renderMarkdown(rep *ExecutionReport) (string, error) {
	var b strings.Builder

	b.WriteString("# PlanGuard Report\n\n")
	fmt.Fprintf(&b, "Edition: %s\n\n", rep.Edition)

	b.WriteString("## Resources\n\n")
	b.WriteString("| # | Address | Monthly Cost | Verdict | Rule |\n")
	b.WriteString("|---|---------|--------------|---------|------|\n")
	for _, res := range rep.Resources {
		cost := "unknown"
		if res.CostKnown {
			cost = numeric.FormatCurrency(res.MonthlyCost)
		}
		rule := res.RuleID
		if rule == "" {
			rule = "-"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", res.Index, res.Address, cost, res.Verdict, rule)
	}

	b.WriteString("\n## Totals\n\n")
	fmt.Fprintf(&b, "- Monthly cost (known resources): %s\n", numeric.FormatCurrency(rep.Totals.MonthlyCost))
	fmt.Fprintf(&b, "- Resources: %d (%d priced, %d unknown cost)\n",
		rep.Totals.ResourceCount, rep.Totals.KnownCosts, rep.Totals.UnknownCosts)
	fmt.Fprintf(&b, "- Verdicts: %d pass, %d warn, %d fail, %d error\n",
		rep.Totals.Passed, rep.Totals.Warned, rep.Totals.Failed, rep.Totals.Errored)

	if len(rep.Annotations) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, note := range rep.Annotations {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}

	if rep.ReportDigest != "" {
		fmt.Fprintf(&b, "\nReport digest: `%s`\n", rep.ReportDigest)
	}

	return e.renderer.Render(b.String()), nil
}
