// Package main provides the CLI entry point for the mahabharatha
// orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/thedataengineer/mahabharatha/internal/cmd"
)

// Version is the current version of the mahabharatha binary.
const Version = "1.0.0"

func main() {
	rootCmd := cmd.NewRootCommand(Version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
