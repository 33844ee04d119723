package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/planguard-io/planguard/pkg/audit"
	"github.com/planguard-io/planguard/pkg/canonical"
	"github.com/planguard-io/planguard/pkg/config"
	"github.com/planguard-io/planguard/pkg/engine"
	"github.com/planguard-io/planguard/pkg/observability"
	"github.com/planguard-io/planguard/pkg/plan"
	"github.com/planguard-io/planguard/pkg/policy"
	"github.com/planguard-io/planguard/pkg/pricing"
	"github.com/planguard-io/planguard/pkg/report"
	"github.com/planguard-io/planguard/pkg/trust"
	"go.opentelemetry.io/otel/attribute"
)

func runScanCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("scan", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		planPath      string
		rulesPath     string
		pricesPath    string
		format        string
		workers       int
		licensePath   string
		modulePath    string
		moduleSigPath string
		moduleVersion string
		auditDBPath   string
		configPath    string
	)

	cmd.StringVar(&planPath, "plan", "", "Path to the plan JSON file (REQUIRED)")
	cmd.StringVar(&rulesPath, "rules", "", "Path to the policy rules YAML file")
	cmd.StringVar(&pricesPath, "prices", "", "Path to the pricing table YAML file")
	cmd.StringVar(&format, "format", "json", "Output format: json or markdown")
	cmd.IntVar(&workers, "workers", 0, "Worker pool size (0 = auto)")
	cmd.StringVar(&licensePath, "license", "", "Path to a license file")
	cmd.StringVar(&modulePath, "module", "", "Path to a signed premium compute module")
	cmd.StringVar(&moduleSigPath, "module-sig", "", "Path to the module's detached signature")
	cmd.StringVar(&moduleVersion, "module-version", "", "Declared module version")
	cmd.StringVar(&auditDBPath, "audit-db", "", "Path to the local audit log database")
	cmd.StringVar(&configPath, "config", "planguard.yaml", "Path to the settings file")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if planPath == "" {
		fmt.Fprintln(stderr, "Error: -plan is required")
		cmd.Usage()
		return exitUsage
	}

	cfg := config.Load()
	settings, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	cfg.Merge(settings)
	if rulesPath == "" {
		rulesPath = settings.RulesPath
	}
	if pricesPath == "" {
		pricesPath = settings.PricesPath
	}
	if format == "json" && settings.Format != "" {
		format = settings.Format
	}
	if licensePath == "" {
		licensePath = cfg.LicensePath
	}
	if auditDBPath == "" {
		auditDBPath = cfg.AuditDBPath
	}
	if workers == 0 {
		workers = cfg.Workers
	}

	setupLogging(cfg.LogLevel, stderr)
	logger := slog.Default().With("component", "cli")

	ctx := context.Background()

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.Enabled = cfg.Observability
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	var sink trust.AuditSink
	if auditDBPath != "" {
		log, err := audit.Open(auditDBPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		defer func() { _ = log.Close() }()
		sink = log
	}

	ring := trust.EmbeddedRing()
	status := checkLicense(ring, licensePath, sink, stderr)
	tier := status.Edition

	rules, err := loadRules(rulesPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	prices, err := loadPrices(pricesPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	planFile, err := os.Open(planPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	records, err := plan.LoadResources(planFile)
	_ = planFile.Close()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	// A rejected module is never fatal: the scan proceeds on the
	// built-in algorithm.
	var module *trust.VerifiedModule
	if modulePath != "" {
		module = loadModule(ctx, ring, modulePath, moduleSigPath, moduleVersion, sink, logger)
		if module != nil {
			defer func() { _ = module.Close(ctx) }()
		}
	}

	builtin := engine.NewBuiltinEvaluator(rules, prices)
	opts := []engine.Option{engine.WithLogger(logger)}
	if workers > 0 {
		opts = append(opts, engine.WithWorkers(workers))
	}
	x := engine.NewForEdition(tier, module, builtin, opts...)

	runCtx, done := obs.TrackScan(ctx,
		attribute.String("edition", string(tier)),
		attribute.Int("resources", len(records)),
	)
	rep, err := x.Run(runCtx, records)
	done(err)
	if err != nil {
		var iv *engine.InvariantViolation
		if errors.As(err, &iv) {
			fmt.Fprintf(stderr, "Invariant violation: %v\n", err)
			return exitInvariant
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFatal
	}

	if sink != nil {
		_ = sink.Append("engine", "run", map[string]any{
			"edition":   string(tier),
			"resources": rep.Totals.ResourceCount,
			"digest":    rep.ReportDigest,
		})
	}

	emitter, err := report.NewEmitter(report.Format(format))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if err := emitter.Emit(stdout, rep); err != nil {
		var serr *canonical.SerializationError
		if errors.As(err, &serr) {
			fmt.Fprintf(stderr, "Serialization failed: %v\n", err)
			return exitFatal
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFatal
	}
	return exitOK
}

// checkLicense resolves the effective edition. A missing or invalid
// license is not an error; it degrades to Free.
func checkLicense(ring *trust.KeyRing, path string, sink trust.AuditSink, stderr io.Writer) trust.LicenseStatus {
	verifier := trust.NewLicenseVerifier(ring, nil, sink)

	var licenseBytes []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: cannot read license %s: %v\n", path, err)
		} else {
			licenseBytes = data
		}
	}
	return verifier.Check(licenseBytes)
}

// loadModule verifies and instantiates a premium module. Every
// rejection is reported and results in a nil module.
func loadModule(ctx context.Context, ring *trust.KeyRing, path, sigPath, version string, sink trust.AuditSink, logger *slog.Logger) *trust.VerifiedModule {
	if sigPath == "" || version == "" {
		logger.Warn("module ignored: -module-sig and -module-version are required")
		return nil
	}
	artifact, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("module ignored", "error", err)
		return nil
	}
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		logger.Warn("module ignored", "error", err)
		return nil
	}

	gate := trust.NewModuleGate(ring, sink)
	module, err := gate.Load(ctx, artifact, sig, version)
	if err != nil {
		logger.Warn("module rejected, using built-in algorithm", "error", err)
		return nil
	}
	logger.Info("premium module verified", "version", version)
	return module
}

func loadRules(path string) (*policy.Set, error) {
	if path == "" {
		return policy.NewSet(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return policy.LoadRules(f)
}

func loadPrices(path string) (*pricing.Table, error) {
	if path == "" {
		return pricing.NewTable(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return pricing.Load(f)
}
