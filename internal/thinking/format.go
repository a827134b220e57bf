package thinking

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Formatter renders steps as bordered blocks for logs and the console.
// It only reads the step it is given.
type Formatter struct {
	color bool

	revision lipgloss.Style
	branch   lipgloss.Style
	thought  lipgloss.Style
}

// NewFormatter creates a formatter whose color profile is detected from w
// (stderr when nil). Non-terminal writers get plain text.
func NewFormatter(w io.Writer) *Formatter {
	if w == nil {
		w = os.Stderr
	}
	r := lipgloss.NewRenderer(w)
	return &Formatter{
		color:    true,
		revision: r.NewStyle().Foreground(lipgloss.Color("3")),
		branch:   r.NewStyle().Foreground(lipgloss.Color("2")),
		thought:  r.NewStyle().Foreground(lipgloss.Color("4")),
	}
}

// SetColor toggles ANSI coloring of the block header.
func (f *Formatter) SetColor(enabled bool) {
	f.color = enabled
}

// Label returns the uncolored header prefix and context for a step.
func Label(step Step) (prefix, context string) {
	switch {
	case step.Revision():
		prefix = "🔄 Revision"
		if step.RevisesThought != nil {
			context = fmt.Sprintf(" (revising thought %d)", *step.RevisesThought)
		} else {
			context = " (revising thought ?)"
		}
	case step.BranchFromThought != nil:
		prefix = "🌿 Branch"
		id := ""
		if step.BranchID != nil {
			id = *step.BranchID
		}
		context = fmt.Sprintf(" (from thought %d, ID: %s)", *step.BranchFromThought, id)
	default:
		prefix = "💭 Thought"
	}
	return prefix, context
}

// Format renders one step:
//
//	┌────────────────┐
//	│ 💭 Thought 1/3 │
//	├────────────────┤
//	│ content        │
//	└────────────────┘
func (f *Formatter) Format(step Step) string {
	prefix, context := Label(step)
	if f.color {
		switch {
		case step.Revision():
			prefix = f.revision.Render(prefix)
		case step.BranchFromThought != nil:
			prefix = f.branch.Render(prefix)
		default:
			prefix = f.thought.Render(prefix)
		}
	}

	header := fmt.Sprintf("%s %d/%d%s", prefix, step.ThoughtNumber, step.TotalThoughts, context)
	lines := strings.Split(step.Thought, "\n")

	width := lipgloss.Width(header)
	for _, line := range lines {
		if w := lipgloss.Width(line); w > width {
			width = w
		}
	}
	border := strings.Repeat("─", width+2)

	var sb strings.Builder
	sb.WriteString("┌" + border + "┐\n")
	sb.WriteString("│ " + padRight(header, width) + " │\n")
	sb.WriteString("├" + border + "┤\n")
	for _, line := range lines {
		sb.WriteString("│ " + padRight(line, width) + " │\n")
	}
	sb.WriteString("└" + border + "┘")
	return sb.String()
}

func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// Markdown renders a sequence of steps as a markdown transcript.
func Markdown(title string, steps []Step) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	if len(steps) == 0 {
		sb.WriteString("_No thoughts recorded._\n")
		return sb.String()
	}
	for _, step := range steps {
		prefix, context := Label(step)
		sb.WriteString(fmt.Sprintf("### %s %d/%d", prefix, step.ThoughtNumber, step.TotalThoughts))
		if context != "" {
			sb.WriteString(fmt.Sprintf(" _%s_", strings.TrimSpace(context)))
		}
		sb.WriteString("\n\n")
		sb.WriteString(step.Thought)
		sb.WriteString("\n\n")
		if step.NeedsMoreThoughts != nil && *step.NeedsMoreThoughts {
			sb.WriteString("> more thoughts needed\n\n")
		}
	}
	return sb.String()
}
