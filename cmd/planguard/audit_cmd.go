package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/planguard-io/planguard/pkg/audit"
	"github.com/planguard-io/planguard/pkg/config"
)

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath string
		tail   int
		verify bool
	)
	cmd.StringVar(&dbPath, "db", "", "Path to the audit log database")
	cmd.IntVar(&tail, "tail", 10, "Number of most recent events to show")
	cmd.BoolVar(&verify, "verify", false, "Verify the hash chain instead of listing events")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if dbPath == "" {
		dbPath = config.Load().AuditDBPath
	}
	if dbPath == "" {
		fmt.Fprintln(stderr, "Error: -db or PLANGUARD_AUDIT_DB is required")
		cmd.Usage()
		return exitUsage
	}

	log, err := audit.Open(dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = log.Close() }()

	ctx := context.Background()

	if verify {
		if err := log.Verify(ctx); err != nil {
			fmt.Fprintf(stderr, "Chain verification failed: %v\n", err)
			return exitFatal
		}
		fmt.Fprintln(stdout, "Chain OK")
		return exitOK
	}

	events, err := log.Tail(ctx, tail)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFatal
	}
	for _, ev := range events {
		fmt.Fprintf(stdout, "%s  %-10s %-8s %s\n", ev.Timestamp, ev.Actor, ev.Action, ev.Payload)
	}
	return exitOK
}
