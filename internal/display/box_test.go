package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox_RendersTitleAndLines(t *testing.T) {
	b := NewBox("Level 2 Status").
		Line("State", "merging").
		Line("Tasks", "4 completed, 1 blocked")

	out := b.String()
	assert.True(t, strings.Contains(out, "Level 2 Status"))
	assert.True(t, strings.Contains(out, "State"))
	assert.True(t, strings.Contains(out, "merging"))
	assert.True(t, strings.Contains(out, "Tasks"))
}

func TestBox_TruncatesOverlongValue(t *testing.T) {
	b := NewBox("Escalation").Line("Message", strings.Repeat("x", 500))
	out := b.String()
	assert.True(t, strings.Contains(out, "..."))
}

func TestBox_EmptyHasTitleAndBorders(t *testing.T) {
	b := NewBox("Empty")
	out := b.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require := assert.New(t)
	require.GreaterOrEqual(len(lines), 3)
	require.True(strings.HasPrefix(lines[0], "┌"))
	require.True(strings.HasPrefix(lines[len(lines)-1], "└"))
}
