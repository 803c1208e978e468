package main

import (
	"fmt"
	"os"

	"github.com/marcelsud/webhook-engine/webhook/origin"
)

/* validate-rules - Standalone CLI tool to validate the origin allow-list
 * Usage: go run cmd/validate-rules/main.go [allowlist.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	rulesFile := "allowlist.yaml"
	if len(os.Args) > 1 {
		rulesFile = os.Args[1]
	}

	fmt.Printf("Validating allow-list file: %s\n", rulesFile)

	rules, err := origin.LoadRules(rulesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// NewValidator parses the CIDRs, so a bad block fails here
	if _, err := origin.NewValidator(origin.Config{Rules: rules}); err != nil {
		fmt.Fprintf(os.Stderr, "VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("VALIDATION PASSED\n\n")
	fmt.Printf("Allowed CIDR blocks (%d):\n", len(rules.CIDRs))
	for _, cidr := range rules.CIDRs {
		fmt.Printf("  - %s\n", cidr)
	}
	fmt.Printf("Allowed bearer issuers (%d):\n", len(rules.BearerIssuers))
	for _, issuer := range rules.BearerIssuers {
		fmt.Printf("  - %s\n", issuer)
	}

	fmt.Printf("\nAll rules are valid!\n")
	os.Exit(0)
}
