package highlight

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter renders workflow JSON and change diffs for the terminal.
type Highlighter struct {
	style     string
	formatter chroma.Formatter
}

// New creates a new Highlighter with the specified style.
// Supported styles: "monokai", "dracula", "github-dark", "native".
func New(style string) *Highlighter {
	if style == "" {
		style = "monokai"
	}

	return &Highlighter{
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Highlight applies syntax highlighting to code based on language.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}

	return buf.String()
}

// JSON indents v and highlights it. Values that cannot be encoded are
// rendered with their error instead.
func (h *Highlighter) JSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return h.Highlight(string(data), "json")
}

// HighlightDiff colors the +/- lines of a workflow change summary.
func (h *Highlighter) HighlightDiff(diff string) string {
	addedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	removedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	noteStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	var result strings.Builder

	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+"):
			result.WriteString(addedStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			result.WriteString(removedStyle.Render(line))
		default:
			result.WriteString(noteStyle.Render(line))
		}
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}

	return result.String()
}
