package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Home returns the orchestrator's home directory for per-repository state
// not tied to any single feature (e.g. the gate cache). Priority order:
//  1. MAHABHARATHA_HOME environment variable, if set
//  2. the repository root, detected by walking up for go.mod
//  3. the current working directory, as a fallback
//
// The directory is created if it does not exist.
func Home() (string, error) {
	if home := os.Getenv("MAHABHARATHA_HOME"); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("config: create home directory: %w", err)
		}
		return home, nil
	}

	root, err := findRepoRoot()
	if err == nil && root != "" {
		home := filepath.Join(root, ".mahabharatha")
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("config: create home directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: determine working directory: %w", err)
	}
	home := filepath.Join(cwd, ".mahabharatha")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("config: create home directory: %w", err)
	}
	return home, nil
}

// findRepoRoot walks up from the current working directory looking for a
// go.mod file, returning the first directory that contains one.
func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: no go.mod found above %s", dir)
		}
		dir = parent
	}
}
