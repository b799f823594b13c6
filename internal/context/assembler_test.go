package context

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/chat"
	"comfypilot/internal/guardrail"
	"comfypilot/internal/memory"
)

func TestSelectMode(t *testing.T) {
	user := chat.NewUserMessage("make me a txt2img workflow")
	reply := chat.NewAssistantMessage(chat.TextPart("done"))

	tests := []struct {
		name string
		msgs []*chat.Message
		want Mode
	}{
		{"first turn", []*chat.Message{user}, ModeFull},
		{"empty request", nil, ModeFull},
		{"later turn", []*chat.Message{user, reply, chat.NewUserMessage("now upscale it")}, ModeContinuation},
		{"client system message", []*chat.Message{chat.NewSystemMessage("custom"), user, reply}, ModeUnchanged},
		{"client system message on first turn", []*chat.Message{chat.NewSystemMessage("custom"), user}, ModeUnchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.msgs))
		})
	}
}

func newTestAssembler(t *testing.T, instructions string, docs map[string]string, user UserContextSource, env EnvironmentSource) *Assembler {
	t.Helper()
	dir := t.TempDir()
	if instructions != "" {
		writeFile(t, filepath.Join(dir, "instructions.md"), instructions)
	}
	for name, body := range docs {
		writeFile(t, filepath.Join(dir, "skills", name), body)
	}
	cfg := defaults()
	return NewAssembler(NewLoader(dir, cfg, user, env), cfg)
}

func TestAssembleFull(t *testing.T) {
	user := fakeUser{uc: memory.UserContext{Rules: []string{"Always use SDXL"}, Persona: "Illustrator"}}
	env := fakeEnv{summary: "6 node types installed"}
	a := newTestAssembler(t, "You help with ComfyUI.", map[string]string{
		"01_graph.md":   "GRAPH BASICS",
		"02_sampler.md": "SAMPLER NOTES",
	}, user, env)

	text, report := a.Assemble(context.Background(), ModeFull)

	order := []string{
		"You help with ComfyUI.",
		"## Workflow building protocol",
		"GRAPH BASICS",
		"SAMPLER NOTES",
		"## Resources loaded on demand",
		"## Environment\n6 node types installed",
		"## User rules\n- Always use SDXL",
		"## Persona\nIllustrator",
	}
	last := -1
	for _, s := range order {
		idx := strings.Index(text, s)
		require.GreaterOrEqual(t, idx, 0, "missing %q", s)
		assert.Greater(t, idx, last, "%q is out of order", s)
		last = idx
	}

	assert.Contains(t, text, "listSkills")
	assert.Contains(t, text, "getModelSkill")
	assert.False(t, report.Truncated())
	assert.Equal(t, len(text), report.Total)
	require.Len(t, report.Sections, 4)
	assert.Equal(t, "instructions", report.Sections[0].Name)
	assert.Equal(t, "user", report.Sections[3].Name)
}

func TestAssembleFullCapsCoreOnly(t *testing.T) {
	big := strings.Repeat("skill text line\n", 1000)
	user := fakeUser{uc: memory.UserContext{Rules: []string{"Prefer euler"}}}
	a := newTestAssembler(t, "core", map[string]string{"01_big.md": big}, user, fakeEnv{summary: "nodes"})

	text, report := a.Assemble(context.Background(), ModeFull)

	core := report.Sections[0]
	assert.True(t, core.Truncated)
	assert.LessOrEqual(t, core.Chars, 12000)
	assert.True(t, report.Truncated())
	// Sections after the core block are never eaten by the core cap.
	assert.Contains(t, text, TruncationMarker+"\n\n"+OnDemandNotice)
	assert.Contains(t, text, "- Prefer euler")
	assert.Greater(t, report.Total, 12000)
}

func TestAssembleFallback(t *testing.T) {
	a := newTestAssembler(t, "", nil, nil, nil)
	text, report := a.Assemble(context.Background(), ModeFull)

	assert.True(t, report.Sections[0].Fallback)
	assert.Equal(t, 1, strings.Count(text, "## Workflow building protocol"))
	assert.Contains(t, text, UnavailableEnvironment)
	assert.NotEqual(t, "user", report.Sections[len(report.Sections)-1].Name)
}

func TestAssembleContinuation(t *testing.T) {
	a := newTestAssembler(t, "core", map[string]string{"01_x.md": "SKILL DOC"}, nil, nil)
	text, report := a.Assemble(context.Background(), ModeContinuation)

	assert.Equal(t, ContinuationReminder, text)
	assert.NotContains(t, text, "SKILL DOC")
	assert.Contains(t, text, guardrail.CriticalRule)
	assert.Less(t, len(text), 300)
	assert.Equal(t, ModeContinuation, report.Mode)
}

func TestPrepare(t *testing.T) {
	a := newTestAssembler(t, "core instructions", nil, nil, nil)
	ctx := context.Background()

	first := []*chat.Message{chat.NewUserMessage("hi")}
	out, mode := a.Prepare(ctx, first)
	assert.Equal(t, ModeFull, mode)
	require.Len(t, out, 2)
	assert.Equal(t, chat.RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Text(), "core instructions")
	assert.Len(t, first, 1, "input must not change")

	later := []*chat.Message{chat.NewUserMessage("hi"), chat.NewAssistantMessage(chat.TextPart("hello")), chat.NewUserMessage("again")}
	out, mode = a.Prepare(ctx, later)
	assert.Equal(t, ModeContinuation, mode)
	require.Len(t, out, 4)
	assert.Equal(t, ContinuationReminder, out[0].Text())

	custom := []*chat.Message{chat.NewSystemMessage("custom"), chat.NewUserMessage("hi")}
	out, mode = a.Prepare(ctx, custom)
	assert.Equal(t, ModeUnchanged, mode)
	assert.Equal(t, custom, out)
}
