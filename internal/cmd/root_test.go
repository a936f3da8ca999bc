package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.0.0")
	if cmd == nil {
		t.Fatal("root command should not be nil")
	}

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	_ = cmd.Execute()

	output := buf.String()
	if !strings.Contains(output, "mahabharatha") {
		t.Errorf("help text should mention mahabharatha, got: %s", output)
	}
	if !strings.Contains(output, "task graph") && !strings.Contains(output, "task-graph") {
		t.Errorf("help text should describe the task graph model, got: %s", output)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand("1.0.0")

	want := []string{"run", "validate", "status", "resume", "gate", "worktree"}
	got := make(map[string]bool)
	for _, c := range cmd.Commands() {
		got[c.Name()] = true
	}

	for _, name := range want {
		if !got[name] {
			t.Errorf("root command missing subcommand %q", name)
		}
	}
}

func TestRootCommandVersion(t *testing.T) {
	cmd := NewRootCommand("9.9.9")
	if cmd.Version != "9.9.9" {
		t.Errorf("Version = %q, want %q", cmd.Version, "9.9.9")
	}
}
