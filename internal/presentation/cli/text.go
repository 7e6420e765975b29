package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// titleWidth bounds titles in list output.
const titleWidth = 72

// singleLine collapses whitespace into single spaces.
func singleLine(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// truncate trims a string to the given width with an ellipsis.
func truncate(text string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(text, width, "...")
}

// styles renders output for w; plain text when w is not a terminal.
type styles struct {
	title  lipgloss.Style
	unread lipgloss.Style
	read   lipgloss.Style
	faint  lipgloss.Style
	failed lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Bold(true),
		unread: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		read:   r.NewStyle().Faint(true),
		faint:  r.NewStyle().Foreground(lipgloss.Color("244")),
		failed: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
