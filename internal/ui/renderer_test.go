package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"comfypilot/internal/chat"
)

func TestRendererPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Stream("Adding ")
	r.Stream("a sampler.")
	r.ToolStart(chat.ToolCall{Name: "addNode", Args: map[string]any{"nodeType": "KSampler"}})
	r.ToolResult(chat.ToolResult{Name: "addNode", Output: map[string]any{"success": true, "data": map[string]any{"id": float64(3)}}})
	r.ToolResult(chat.ToolResult{Name: "applyWorkflow", Output: map[string]any{"success": false, "error": "missing model x.safetensors in checkpoints"}})
	r.Notice("Stopped after 3 automatic tool rounds.")
	r.Error(errors.New("boom"))
	r.Flush()

	out := buf.String()
	assert.Contains(t, out, "Adding a sampler.")
	assert.Less(t, strings.Index(out, "Adding a sampler."), strings.Index(out, "addNode"), "text is flushed before the tool line")
	assert.Contains(t, out, "nodeType=KSampler")
	assert.Contains(t, out, `{"id":3}`)
	assert.Contains(t, out, "missing model x.safetensors")
	assert.Contains(t, out, "Stopped after 3 automatic tool rounds.")
	assert.Contains(t, out, "boom")
}

func TestRendererShowsWorkflowDiff(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)
	r.ToolResult(chat.ToolResult{Name: "applyWorkflow", Output: map[string]any{
		"success": true,
		"data": map[string]any{
			"applied": true,
			"changes": map[string]any{"diff": "+  \"steps\": 30\n"},
		},
	}})
	assert.Contains(t, buf.String(), `+  "steps": 30`)
}

func TestSummarizeArgs(t *testing.T) {
	assert.Empty(t, summarizeArgs(nil))
	got := summarizeArgs(map[string]any{"b": float64(2), "a": "line one\nline two"})
	assert.Equal(t, "a=line one line two b=2", got)

	long := summarizeArgs(map[string]any{"workflow": strings.Repeat("x", 500)})
	assert.LessOrEqual(t, len([]rune(long)), maxSummaryChars+1)
}

func TestToolFamily(t *testing.T) {
	assert.Equal(t, "graph", toolFamily("setNodeWidgetValue"))
	assert.Equal(t, "library", toolFamily("getModelSkill"))
	assert.Equal(t, "library", toolFamily("searchTemplates"))
	assert.Equal(t, "web", toolFamily("webFetch"))
	assert.Equal(t, ToolIcons["default"], GetToolIcon("somethingElse"))
}
