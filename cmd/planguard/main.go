package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const version = "1.0.0"

// Exit codes. Usage errors exit 2, a report that cannot be serialized
// exits 1, and a determinism invariant violation exits 3.
const (
	exitOK        = 0
	exitFatal     = 1
	exitUsage     = 2
	exitInvariant = 3
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[1] {
	case "scan":
		return runScanCmd(args[2:], stdout, stderr)
	case "license":
		return runLicenseCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "planguard %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "PlanGuard %s\n", version)
	fmt.Fprintln(w, "Deterministic, offline infrastructure plan scanner.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  planguard <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	printCommand(w, "scan", "Evaluate a plan against policy rules and pricing (-plan, -rules, -prices)")
	printCommand(w, "license", "Inspect a license file and the edition it grants (-file)")
	printCommand(w, "audit", "Inspect or verify the local audit log (-db, -tail, -verify)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}

// setupLogging configures the process-wide slog default. All logs go
// to stderr so stdout stays reserved for report output.
func setupLogging(level string, stderr io.Writer) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl})))
}
