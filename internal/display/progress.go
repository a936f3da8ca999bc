package display

import (
	"fmt"
	"io"
	"path/filepath"
)

// ProgressIndicator renders multi-step progress for operations that walk
// a known-size collection — levels being validated, worktrees being
// provisioned — with ANSI colors for a TTY.
type ProgressIndicator struct {
	writer  io.Writer
	total   int
	current int
}

// NewProgressIndicator creates a new progress indicator for total steps.
func NewProgressIndicator(w io.Writer, total int) *ProgressIndicator {
	return &ProgressIndicator{writer: w, total: total}
}

// Start displays the header message.
func (p *ProgressIndicator) Start() {
	fmt.Fprintf(p.writer, "Loading %d level(s):\n", p.total)
}

// Step displays progress for the current item: [N/Total] followed by the
// last path element of label (filepath.Base), in cyan.
func (p *ProgressIndicator) Step(label string) {
	p.current++
	basename := filepath.Base(label)
	fmt.Fprintf(p.writer, "\x1b[36m  [%d/%d] %s\x1b[0m\n", p.current, p.total, basename)
}

// Complete displays a success message with a green checkmark.
func (p *ProgressIndicator) Complete() {
	fmt.Fprintf(p.writer, "\x1b[32m✓\x1b[0m Loaded %d level(s)\n", p.total)
}

// DisplaySingleFile shows a simple loading message for a single
// task-graph document.
func DisplaySingleFile(w io.Writer, path string) {
	fmt.Fprintf(w, "Loading task graph from %s...\n", path)
}
