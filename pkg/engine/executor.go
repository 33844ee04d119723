package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/planguard-io/planguard/pkg/numeric"
	"github.com/planguard-io/planguard/pkg/plan"
	"github.com/planguard-io/planguard/pkg/report"
	"github.com/planguard-io/planguard/pkg/tiers"
	"github.com/planguard-io/planguard/pkg/trust"
)

// InvariantViolation signals that the determinism contract itself was
// broken during result assembly. It is surfaced loudly and terminates
// the run with a non-zero exit; it is never absorbed.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

// Executor evaluates resource records with a bounded worker pool.
// Results are invariant to the pool size: every worker writes only its
// own indices, and the report is assembled by ascending index with a
// single fixed-order fold for totals.
type Executor struct {
	evaluator Evaluator
	edition   tiers.Edition
	workers   int
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the worker pool size. Zero or negative means
// available concurrency. The choice never affects output bytes.
func WithWorkers(n int) Option {
	return func(x *Executor) { x.workers = n }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// New creates an executor for an already-selected evaluator.
func New(evaluator Evaluator, edition tiers.Edition, opts ...Option) *Executor {
	x := &Executor{
		evaluator: evaluator,
		edition:   edition,
		logger:    slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// NewForEdition selects the edition-appropriate evaluator exactly once,
// before any evaluation begins. The premium module is only consulted
// when the verified edition carries the premium_module feature AND the
// integrity gate produced a handle; in every other case the built-in
// algorithm serves, and it always produces a complete, valid report.
func NewForEdition(edition tiers.Edition, module *trust.VerifiedModule, builtin Evaluator, opts ...Option) *Executor {
	evaluator := builtin
	tier := tiers.Get(edition)
	if tier != nil && tier.HasFeature("premium_module") && module != nil {
		evaluator = NewModuleEvaluator(module, builtin)
	}
	return New(evaluator, edition, opts...)
}

// Run evaluates the records and assembles the execution report.
//
// All I/O has completed before Run is called: evaluation is pure
// CPU-bound computation over immutable data, which is why there is no
// internal cancellation path — the caller may kill the process and
// rerun, evaluation being idempotent and side-effect free.
func (x *Executor) Run(ctx context.Context, records []plan.ResourceRecord) (*report.ExecutionReport, error) {
	tracer := otel.Tracer("planguard/engine")
	ctx, span := tracer.Start(ctx, "engine.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("resources", len(records)),
		attribute.String("edition", string(x.edition)),
	)

	workers := x.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if tier := tiers.Get(x.edition); tier != nil && !tiers.IsUnlimited(tier.Limits.MaxConcurrency) && workers > tier.Limits.MaxConcurrency {
		workers = tier.Limits.MaxConcurrency
	}
	if workers > len(records) {
		workers = len(records)
	}
	if workers < 1 {
		workers = 1
	}

	// Index-keyed, write-once result collection. Each worker owns a
	// contiguous index range, so no two goroutines ever touch the same
	// slot; the slice is read only after all workers complete.
	results := make([]*report.EvaluationResult, len(records))

	chunk := (len(records) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(records) {
			hi = len(records)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				res := x.evaluator.Evaluate(records[i])
				res.Index = i
				results[i] = &res
			}
		}(lo, hi)
	}
	wg.Wait()

	rep, err := x.assemble(results)
	if err != nil {
		return nil, err
	}

	x.logger.DebugContext(ctx, "evaluation complete",
		"resources", rep.Totals.ResourceCount,
		"workers", workers,
		"failed", rep.Totals.Failed,
	)
	return rep, nil
}

// assemble produces the report by iterating indices in ascending order.
// Totals come from a single left-to-right fold over that same order:
// float addition is not associative, so the summation order is part of
// the determinism contract.
func (x *Executor) assemble(results []*report.EvaluationResult) (*report.ExecutionReport, error) {
	rep := &report.ExecutionReport{
		Edition:   string(x.edition),
		Resources: make([]report.EvaluationResult, 0, len(results)),
	}

	for i, res := range results {
		if res == nil {
			return nil, &InvariantViolation{Detail: fmt.Sprintf("no result for index %d", i)}
		}
		if res.Index != i {
			return nil, &InvariantViolation{Detail: fmt.Sprintf("result at slot %d carries index %d", i, res.Index)}
		}
		rep.Resources = append(rep.Resources, *res)

		rep.Totals.ResourceCount++
		if res.CostKnown {
			rep.Totals.MonthlyCost += res.MonthlyCost
			rep.Totals.KnownCosts++
		} else if res.Verdict != report.VerdictError {
			rep.Totals.UnknownCosts++
		}
		switch res.Verdict {
		case report.VerdictPass:
			rep.Totals.Passed++
		case report.VerdictWarn:
			rep.Totals.Warned++
		case report.VerdictFail:
			rep.Totals.Failed++
		case report.VerdictError:
			rep.Totals.Errored++
		}
	}
	rep.Totals.MonthlyCost = numeric.RoundCurrency(rep.Totals.MonthlyCost)

	if tier := tiers.Get(x.edition); tier != nil &&
		!tiers.IsUnlimited(tier.Limits.MaxResourcesPerScan) &&
		rep.Totals.ResourceCount > tier.Limits.MaxResourcesPerScan {
		rep.Annotations = append(rep.Annotations, fmt.Sprintf(
			"plan has %d resources; the %s edition is sized for %d — results are complete, consider upgrading",
			rep.Totals.ResourceCount, tier.Name, tier.Limits.MaxResourcesPerScan))
	}

	if err := report.Seal(rep); err != nil {
		return nil, err
	}
	return rep, nil
}
