package logger

import (
	"fmt"

	"github.com/fatih/color"
)

// colorScheme defines consistent colors for orchestrator output.
// Green: success/positive outcomes (pass, completed).
// Red: failure/error outcomes (fail, crashed, blocked).
// Yellow: warning/in-progress outcomes (stall, retry).
// Cyan: labels and identifiers (worker ids, gate names).
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	value   *color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgWhite),
	}
}

// formatGateOutcome colorizes a gate name/outcome pair for the
// `mahabharatha status` and merge-event console lines.
func formatGateOutcome(scheme *colorScheme, gate, outcome string) string {
	label := scheme.label.Sprint(gate)
	var valueColored string
	switch outcome {
	case "pass":
		valueColored = scheme.success.Sprint(outcome)
	case "fail", "timeout", "error":
		valueColored = scheme.fail.Sprint(outcome)
	case "skip":
		valueColored = scheme.warn.Sprint(outcome)
	default:
		valueColored = scheme.value.Sprint(outcome)
	}
	return fmt.Sprintf("%s: %s", label, valueColored)
}

// formatWorkerStatus colorizes a worker status for console lines.
func formatWorkerStatus(scheme *colorScheme, status string) string {
	switch status {
	case "crashed", "stopped", "blocked":
		return scheme.fail.Sprint(status)
	case "checkpointing", "verifying":
		return scheme.warn.Sprint(status)
	default:
		return scheme.success.Sprint(status)
	}
}
