package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"comfypilot/internal/chat"
	"comfypilot/internal/highlight"
)

const maxSummaryChars = 120

// Renderer writes a chat session to a terminal. Assistant text is buffered
// while it streams and rendered as markdown when flushed. Methods may be
// called from several goroutines.
type Renderer struct {
	out         io.Writer
	styles      *Styles
	markdown    *glamour.TermRenderer
	highlighter *highlight.Highlighter
	pending     strings.Builder
	mu          sync.Mutex
}

// NewRenderer creates a renderer. Plain output skips markdown rendering
// and syntax highlighting.
func NewRenderer(out io.Writer, plain bool) *Renderer {
	r := &Renderer{out: out, styles: DefaultStyles()}
	if plain {
		return r
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		r.markdown = md
	}
	r.highlighter = highlight.New("monokai")
	return r
}

// Stream buffers a text delta.
func (r *Renderer) Stream(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.WriteString(delta)
}

// Flush renders and clears the buffered assistant text.
func (r *Renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Renderer) flushLocked() {
	text := strings.TrimSpace(r.pending.String())
	r.pending.Reset()
	if text == "" {
		return
	}
	fmt.Fprintln(r.out, r.renderMarkdown(text))
}

func (r *Renderer) renderMarkdown(text string) string {
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// ToolStart prints the header line of a tool call.
func (r *Renderer) ToolStart(call chat.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()

	icon := GetToolIcon(call.Name)
	name := r.styles.ToolHeader.Foreground(GetToolIconColor(call.Name)).Render(call.Name)
	fmt.Fprintf(r.out, "%s %s %s\n", icon, name, r.styles.Dim.Render(summarizeArgs(call.Args)))
}

// ToolResult prints the outcome of a tool call. A workflow change summary
// is shown as a colored diff.
func (r *Renderer) ToolResult(res chat.ToolResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, _ := res.Output["success"].(bool)
	if !ok {
		msg, _ := res.Output["error"].(string)
		line := fmt.Sprintf("%s %s: %s", MessageIcons["error"], res.Name, truncate(msg, 4*maxSummaryChars))
		fmt.Fprintln(r.out, r.styles.ToolResult.Render(r.styles.Error.Render(line)))
		return
	}

	line := fmt.Sprintf("%s %s", MessageIcons["success"], summarizeData(res.Output["data"]))
	fmt.Fprintln(r.out, r.styles.ToolResult.Render(line))

	if diff := changeDiff(res.Output); diff != "" {
		if r.highlighter != nil {
			diff = r.highlighter.HighlightDiff(diff)
		}
		fmt.Fprintln(r.out, diff)
	}
}

// Notice prints a boxed notice such as a provider failure or the round cap.
func (r *Renderer) Notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
	fmt.Fprintln(r.out, r.styles.Notice.Render(MessageIcons["warning"]+" "+text))
}

// Info prints a dim informational line.
func (r *Renderer) Info(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.styles.Dim.Render(text))
}

// Error prints an error line.
func (r *Renderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.styles.Error.Render(MessageIcons["error"]+" "+err.Error()))
}

// JSON prints v as indented, highlighted JSON.
func (r *Renderer) JSON(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.highlighter != nil {
		fmt.Fprintln(r.out, r.highlighter.JSON(v))
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(r.out, "error: "+err.Error())
		return
	}
	fmt.Fprintln(r.out, string(data))
}

// Prompt returns the styled input prompt.
func (r *Renderer) Prompt() string {
	return r.styles.UserPrompt.Render("you ›") + " "
}

func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(args[k])
		if s, ok := args[k].(string); ok {
			v = truncate(strings.ReplaceAll(s, "\n", " "), 40)
		}
		parts = append(parts, k+"="+v)
	}
	return truncate(strings.Join(parts, " "), maxSummaryChars)
}

func summarizeData(data any) string {
	if data == nil {
		return "done"
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "done"
	}
	return truncate(string(raw), maxSummaryChars)
}

// changeDiff extracts data.changes.diff from an applyWorkflow result.
func changeDiff(output map[string]any) string {
	data, _ := output["data"].(map[string]any)
	changes, _ := data["changes"].(map[string]any)
	diff, _ := changes["diff"].(string)
	return diff
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
