package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/planguard-io/planguard/pkg/config"
	"github.com/planguard-io/planguard/pkg/trust"
)

func runLicenseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("license", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var file string
	cmd.StringVar(&file, "file", "", "Path to the license file (default: PLANGUARD_LICENSE)")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if file == "" {
		file = config.Load().LicensePath
	}

	var data []byte
	if file != "" {
		var err error
		data, err = os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
	}

	verifier := trust.NewLicenseVerifier(trust.EmbeddedRing(), nil, nil)
	status := verifier.Check(data)

	fmt.Fprintf(stdout, "Edition:  %s\n", status.Edition)
	fmt.Fprintf(stdout, "Reason:   %s\n", status.Reason)
	if status.Licensee != "" {
		fmt.Fprintf(stdout, "Licensee: %s\n", status.Licensee)
	}
	if !status.ExpiresAt.IsZero() {
		fmt.Fprintf(stdout, "Expires:  %s\n", status.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if status.Reason != trust.ReasonValid {
		return exitFatal
	}
	return exitOK
}
