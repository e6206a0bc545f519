package main

import (
	"fmt"
	"os"

	"github.com/marcelsud/formrelay/routes"
)

/* validate-destinations - Standalone CLI tool to validate destinations.yaml
 * Usage: go run cmd/validate-destinations/main.go [destinations.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	// Get destinations file path from args or use default
	destinationsFile := "destinations.yaml"
	if len(os.Args) > 1 {
		destinationsFile = os.Args[1]
	}

	fmt.Printf("Validating destinations file: %s\n", destinationsFile)

	// Create loader and attempt to load destinations
	loader := routes.NewLoader()
	if err := loader.Load(destinationsFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Success - print loaded destinations
	loaded := loader.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d destination(s):\n", len(loaded))

	for i, destination := range loaded {
		fmt.Printf("\n%d. Form: %s\n", i+1, destination.FormID)
		fmt.Printf("   Webhook URL:     %s\n", destination.WebhookURL)
		fmt.Printf("   Expected Status: %d\n", destination.ExpectedStatus)
		if destination.MaxAttempts > 0 {
			fmt.Printf("   Max Attempts:    %d\n", destination.MaxAttempts)
		}
		if !destination.TimestampChecked {
			fmt.Printf("   Timestamp check: disabled\n")
		}
	}

	fmt.Printf("\n✓ All destinations are valid!\n")
	os.Exit(0)
}
