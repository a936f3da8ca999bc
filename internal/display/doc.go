// Package display provides terminal UI utilities for the mahabharatha
// CLI: progress indicators, operator warnings, and the boxed summaries
// rendered by `mahabharatha status`.
//
// # Progress Indicators
//
// Use ProgressIndicator for multi-step operations such as validating a
// task graph's levels:
//
//	progress := display.NewProgressIndicator(os.Stdout, len(levels))
//	progress.Start()
//	for _, lvl := range levels {
//	    progress.Step(lvl.Label)
//	    // ... validate level ...
//	}
//	progress.Complete()
//
// For a single task-graph document:
//
//	display.DisplaySingleFile(os.Stdout, graphPath)
//
// # Warning Messages
//
// Display operator warnings with optional components:
//
//	warning := display.Warning{
//	    Title:      "Level 2 has a blocked task",
//	    Message:    "Task T7 exhausted its retry budget",
//	    Files:      []string{"internal/auth/token.go"},
//	    Suggestion: "Resolve the escalation, then re-run the level",
//	}
//	warning.Display(os.Stderr)
//
// # Boxed Summaries
//
// Box renders a dynamically-width, runewidth-aware labeled summary for
// `mahabharatha status`:
//
//	b := display.NewBox("Level 3 Status")
//	b.Line("tasks", "4 completed, 1 blocked")
//	b.WriteTo(os.Stdout)
//
// The progress and warning functions accept io.Writer interfaces for
// testability; Box renders to a string via String, and WriteTo writes that
// string to an *os.File. Each output is written in a single buffered call
// so it never interleaves with concurrent worker logs.
package display
