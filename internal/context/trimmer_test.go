package context

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/chat"
)

// round returns an assistant message calling one tool and the tool message answering it.
func round(n int) []*chat.Message {
	id := fmt.Sprintf("call-%d", n)
	call := chat.NewAssistantMessage(chat.CallPart(chat.ToolCall{ID: id, Name: "getWorkflow"}))
	result := chat.NewToolMessage(chat.ToolResult{
		CallID: id,
		Name:   "getWorkflow",
		Output: map[string]any{"success": true, "data": fmt.Sprintf("graph %d", n)},
	})
	return []*chat.Message{call, result}
}

func outputs(msgs []*chat.Message) []map[string]any {
	var out []map[string]any
	for _, m := range msgs {
		for _, r := range m.ToolResults() {
			out = append(out, r.Output)
		}
	}
	return out
}

func TestRedactToolResults(t *testing.T) {
	var msgs []*chat.Message
	msgs = append(msgs, chat.NewSystemMessage("sys"), chat.NewUserMessage("go"))
	for i := 1; i <= 5; i++ {
		msgs = append(msgs, round(i)...)
	}
	msgs = append(msgs, chat.NewAssistantMessage(chat.TextPart("done")))
	before := outputs(msgs)

	out := RedactToolResults(msgs, 2)
	require.Len(t, out, len(msgs))

	// Rounds 1-3 are placeholders, rounds 4-5 are verbatim.
	got := outputs(out)
	require.Len(t, got, 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, OmittedOutput(), got[i], "round %d", i+1)
	}
	assert.Equal(t, "graph 4", got[3]["data"])
	assert.Equal(t, "graph 5", got[4]["data"])
	assert.False(t, out[11].ToolResults()[0].Redacted)

	// Linkage and roles survive.
	for i, m := range out {
		assert.Equal(t, msgs[i].Role, m.Role)
		assert.Equal(t, msgs[i].ID, m.ID)
	}
	assert.Equal(t, "call-1", out[3].ToolResults()[0].CallID)
	assert.True(t, out[3].ToolResults()[0].Redacted)

	assert.Empty(t, cmp.Diff(before, outputs(msgs)), "input must not be modified")

	again := RedactToolResults(out, 2)
	assert.Empty(t, cmp.Diff(outputs(out), outputs(again)), "redaction must be idempotent")
}

func TestRedactInPlaceResults(t *testing.T) {
	// An assistant message holding its own results counts as one round.
	old := chat.NewAssistantMessage(
		chat.CallPart(chat.ToolCall{ID: "a", Name: "getWorkflow"}),
		chat.ResultPart(chat.ToolResult{CallID: "a", Name: "getWorkflow", Output: map[string]any{"success": true}}),
		chat.TextPart("here it is"),
	)
	msgs := []*chat.Message{chat.NewUserMessage("show"), old}
	msgs = append(msgs, round(2)...)

	out := RedactToolResults(msgs, 1)
	assert.True(t, out[1].ToolResults()[0].Redacted)
	assert.Equal(t, "here it is", out[1].Text())
	assert.False(t, out[3].ToolResults()[0].Redacted)
}

func TestTrimCount(t *testing.T) {
	t.Run("keeps system messages and the newest window", func(t *testing.T) {
		msgs := []*chat.Message{chat.NewSystemMessage("sys")}
		for i := 0; i < 30; i++ {
			msgs = append(msgs, chat.NewUserMessage(fmt.Sprint(i)))
		}
		out := TrimCount(msgs, 24)
		require.Len(t, out, 25)
		assert.Equal(t, chat.RoleSystem, out[0].Role)
		assert.Equal(t, "6", out[1].Text())
		assert.Equal(t, "29", out[24].Text())
	})

	t.Run("drops a leading orphaned result", func(t *testing.T) {
		msgs := []*chat.Message{chat.NewUserMessage("go")}
		msgs = append(msgs, round(1)...)
		msgs = append(msgs, chat.NewAssistantMessage(chat.TextPart("ok")))

		// Window of 2 starts at the tool message answering call-1.
		out := TrimCount(msgs, 2)
		require.Len(t, out, 1)
		assert.Equal(t, "ok", out[0].Text())
	})

	t.Run("fails closed on a mid-window orphan", func(t *testing.T) {
		stray := chat.NewToolMessage(chat.ToolResult{CallID: "ghost", Name: "addNode"})
		msgs := []*chat.Message{
			chat.NewSystemMessage("sys"),
			chat.NewUserMessage("one"),
			chat.NewAssistantMessage(chat.TextPart("reply")),
			stray,
			chat.NewUserMessage("two"),
		}
		msgs = append(msgs, round(1)...)

		out := TrimCount(msgs, 24)
		var texts []string
		for _, m := range out {
			texts = append(texts, string(m.Role)+":"+m.Text())
		}
		assert.Equal(t, []string{"system:sys", "user:two", "assistant:", "tool:"}, texts)
	})

	t.Run("idempotent", func(t *testing.T) {
		var msgs []*chat.Message
		for i := 0; i < 20; i++ {
			msgs = append(msgs, round(i)...)
		}
		once := TrimCount(msgs, 9)
		twice := TrimCount(once, 9)
		assert.Equal(t, once, twice)
		assert.Equal(t, chat.RoleAssistant, once[0].Role)
	})
}

func TestTrimmer(t *testing.T) {
	var msgs []*chat.Message
	msgs = append(msgs, chat.NewSystemMessage("sys"))
	for i := 0; i < 20; i++ {
		msgs = append(msgs, chat.NewUserMessage("q"))
		msgs = append(msgs, round(i)...)
	}

	out := NewTrimmer(24, 2).Trim(msgs)
	assert.Equal(t, 1, chat.CountRole(out, chat.RoleSystem))
	assert.LessOrEqual(t, len(out)-1, 24)

	redacted := 0
	for _, m := range out {
		for _, r := range m.ToolResults() {
			if r.Redacted {
				redacted++
			}
		}
	}
	assert.Equal(t, chat.CountRole(out, chat.RoleTool)-2, redacted)
}
