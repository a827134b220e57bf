package thinking

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainFormatter() *Formatter {
	f := NewFormatter(&bytes.Buffer{})
	f.SetColor(false)
	return f
}

func TestFormatHeaders(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{
			name: "plain thought",
			step: Step{Thought: "A", ThoughtNumber: 1, TotalThoughts: 3},
			want: "💭 Thought 1/3",
		},
		{
			name: "revision",
			step: Step{Thought: "A", ThoughtNumber: 4, TotalThoughts: 5, IsRevision: ptr(true), RevisesThought: ptr(2)},
			want: "🔄 Revision 4/5 (revising thought 2)",
		},
		{
			name: "branch",
			step: Step{Thought: "A", ThoughtNumber: 2, TotalThoughts: 3, BranchFromThought: ptr(1), BranchID: ptr("alt")},
			want: "🌿 Branch 2/3 (from thought 1, ID: alt)",
		},
		{
			name: "revision wins over branch",
			step: Step{Thought: "A", ThoughtNumber: 2, TotalThoughts: 3, IsRevision: ptr(true), RevisesThought: ptr(1), BranchFromThought: ptr(1), BranchID: ptr("alt")},
			want: "🔄 Revision 2/3 (revising thought 1)",
		},
		{
			name: "explicit non-revision",
			step: Step{Thought: "A", ThoughtNumber: 1, TotalThoughts: 1, IsRevision: ptr(false)},
			want: "💭 Thought 1/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := plainFormatter().Format(tt.step)
			lines := strings.Split(out, "\n")
			require.Len(t, lines, 5)
			assert.Equal(t, tt.want, strings.TrimSpace(strings.Trim(lines[1], "│")))
		})
	}
}

func TestFormatBoxIsRectangular(t *testing.T) {
	step := Step{
		Thought:       "a much longer line of reasoning than the header\nshort",
		ThoughtNumber: 10,
		TotalThoughts: 12,
	}
	out := plainFormatter().Format(step)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6)

	width := lipgloss.Width(lines[0])
	for i, line := range lines {
		assert.Equal(t, width, lipgloss.Width(line), "line %d has a different width: %q", i, line)
	}
	assert.True(t, strings.HasPrefix(lines[0], "┌"))
	assert.True(t, strings.HasPrefix(lines[2], "├"))
	assert.True(t, strings.HasPrefix(lines[5], "└"))
	assert.Contains(t, lines[3], "a much longer line of reasoning")
	assert.Contains(t, lines[4], "short")
}

func TestFormatWithColorKeepsWidths(t *testing.T) {
	f := NewFormatter(&bytes.Buffer{})
	out := f.Format(Step{Thought: "x", ThoughtNumber: 1, TotalThoughts: 1, BranchFromThought: ptr(1), BranchID: ptr("b")})
	lines := strings.Split(out, "\n")
	width := lipgloss.Width(lines[0])
	for _, line := range lines {
		assert.Equal(t, width, lipgloss.Width(line))
	}
	assert.Contains(t, out, "Branch")
}

func TestFormatDoesNotTouchStore(t *testing.T) {
	p := newTestProcessor()
	_ = p.formatter.Format(Step{Thought: "x", ThoughtNumber: 1, TotalThoughts: 1})
	assert.Equal(t, 0, p.HistoryLength())
}

func TestMarkdown(t *testing.T) {
	md := Markdown("Session abc", []Step{
		{Thought: "first", ThoughtNumber: 1, TotalThoughts: 2},
		{Thought: "alt", ThoughtNumber: 2, TotalThoughts: 2, BranchFromThought: ptr(1), BranchID: ptr("alt"), NeedsMoreThoughts: ptr(true)},
	})

	assert.True(t, strings.HasPrefix(md, "# Session abc\n"))
	assert.Contains(t, md, "### 💭 Thought 1/2\n\nfirst")
	assert.Contains(t, md, "### 🌿 Branch 2/2 _(from thought 1, ID: alt)_")
	assert.Contains(t, md, "> more thoughts needed")

	empty := Markdown("Empty", nil)
	assert.Contains(t, empty, "No thoughts recorded")
}
