// Package display renders the boxed terminal summaries used by
// `mahabharatha status`, grounded on the teacher's
// internal/agent/invoker.go logInvocation box-drawing idiom: a
// dynamically-width terminal box with runewidth-aware label/value
// alignment and truncation, buffered and written atomically so it never
// interleaves with concurrent worker output.
package display

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// boxWidth returns the terminal width for box drawing, clamped to a
// readable range; falls back to 80 columns when stdout isn't a terminal.
func boxWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 60 {
		return 80
	}
	if width > 120 {
		return 120
	}
	return width
}

// Box accumulates labeled lines for a single boxed summary.
type Box struct {
	title string
	lines []line
}

type line struct {
	label, value string
}

// NewBox starts a boxed summary with the given title (e.g. "Level 3
// Status", "Gate Report").
func NewBox(title string) *Box {
	return &Box{title: title}
}

// Line adds a label/value row, rendered in the order added.
func (b *Box) Line(label, value string) *Box {
	b.lines = append(b.lines, line{label: label, value: value})
	return b
}

// String renders the box to a single string, sized to the current
// terminal width, with runewidth-aware padding and truncation so
// multi-byte labels/values (escalation messages, branch names) still
// line up.
func (b *Box) String() string {
	width := boxWidth()
	inner := width - 4

	var buf strings.Builder
	hLine := strings.Repeat("─", width-2)
	fmt.Fprintf(&buf, "┌%s┐\n", hLine)

	titleLen := runewidth.StringWidth(b.title)
	pad := inner - titleLen
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(&buf, "│ %s%s │\n", b.title, strings.Repeat(" ", pad))
	fmt.Fprintf(&buf, "├%s┤\n", hLine)

	for _, l := range b.lines {
		labelWidth := runewidth.StringWidth(l.label)
		value := l.value
		valueWidth := runewidth.StringWidth(value)

		maxValueWidth := inner - labelWidth - 2
		if valueWidth > maxValueWidth && maxValueWidth > 3 {
			value = runewidth.Truncate(value, maxValueWidth-3, "...")
			valueWidth = runewidth.StringWidth(value)
		}

		linePad := inner - labelWidth - 2 - valueWidth
		if linePad < 0 {
			linePad = 0
		}
		fmt.Fprintf(&buf, "│ %s: %s%s │\n", l.label, value, strings.Repeat(" ", linePad))
	}

	fmt.Fprintf(&buf, "└%s┘\n", hLine)
	return buf.String()
}

// WriteTo writes the rendered box to w in one call, so it can't
// interleave with concurrent writers sharing the same stream.
func (b *Box) WriteTo(w *os.File) {
	_, _ = w.WriteString(b.String())
}
