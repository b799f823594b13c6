package context

import (
	"comfypilot/internal/chat"
	"comfypilot/internal/logging"
)

// OmittedNote replaces the output of tool results outside the kept rounds.
const OmittedNote = "Tool output omitted to save space. Call the tool again if you need it."

// Trimmer bounds the history replayed on each request.
type Trimmer struct {
	maxNonSystem int
	keepRounds   int
}

// NewTrimmer creates a trimmer. A non-positive maxNonSystem disables the
// count pass; a negative keepRounds disables redaction.
func NewTrimmer(maxNonSystem, keepRounds int) *Trimmer {
	return &Trimmer{maxNonSystem: maxNonSystem, keepRounds: keepRounds}
}

// Trim redacts old tool outputs and then trims the message count.
func (t *Trimmer) Trim(msgs []*chat.Message) []*chat.Message {
	out := msgs
	if t.keepRounds >= 0 {
		out = RedactToolResults(out, t.keepRounds)
	}
	if t.maxNonSystem > 0 {
		out = TrimCount(out, t.maxNonSystem)
	}
	return out
}

// RedactToolResults replaces the tool outputs of all but the newest
// keepRounds rounds with a placeholder. A round is an assistant message
// with tool calls plus the tool messages that directly follow it. Roles and
// call IDs are kept; the input messages are not modified.
func RedactToolResults(msgs []*chat.Message, keepRounds int) []*chat.Message {
	out := make([]*chat.Message, len(msgs))
	copy(out, msgs)

	rounds := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != chat.RoleAssistant || !m.HasToolCalls() {
			continue
		}
		rounds++
		if rounds <= keepRounds {
			continue
		}
		out[i] = redactMessage(m)
		for j := i + 1; j < len(msgs) && msgs[j].Role == chat.RoleTool; j++ {
			out[j] = redactMessage(msgs[j])
		}
	}
	return out
}

// OmittedOutput is the placeholder payload of a redacted result.
func OmittedOutput() map[string]any {
	return map[string]any{"_omitted": true, "note": OmittedNote}
}

func redactMessage(m *chat.Message) *chat.Message {
	changed := false
	for _, p := range m.Parts {
		if p.Kind == chat.PartToolResult && p.Result != nil && !p.Result.Redacted {
			changed = true
			break
		}
	}
	if !changed {
		return m
	}

	cp := m.Clone()
	for i := range cp.Parts {
		if r := cp.Parts[i].Result; cp.Parts[i].Kind == chat.PartToolResult && r != nil {
			r.Output = OmittedOutput()
			r.Redacted = true
		}
	}
	return cp
}

// TrimCount keeps every system message plus the newest maxNonSystem other
// messages, in order. A window must not start with results whose calls were
// cut off; such leading messages are dropped. A result that answers no call
// in the window further in is malformed history: everything before it, and
// it, is dropped.
func TrimCount(msgs []*chat.Message, maxNonSystem int) []*chat.Message {
	var nonSystem []int
	for i, m := range msgs {
		if m.Role != chat.RoleSystem {
			nonSystem = append(nonSystem, i)
		}
	}
	window := nonSystem
	if maxNonSystem > 0 && len(window) > maxNonSystem {
		window = window[len(window)-maxNonSystem:]
	}

	start := 0
	seen := make(map[string]bool)
	for w, idx := range window {
		m := msgs[idx]
		for _, c := range m.ToolCalls() {
			seen[c.ID] = true
		}
		for _, r := range m.ToolResults() {
			if seen[r.CallID] {
				continue
			}
			if w == start {
				logging.Debug("dropping leading orphaned tool result", "message", m.ID, "call", r.CallID)
			} else {
				logging.Warn("dropping malformed history fragment",
					"message", m.ID,
					"call", r.CallID,
					"dropped", w-start+1)
			}
			start = w + 1
			seen = make(map[string]bool)
			break
		}
	}

	keep := make(map[int]bool, len(window)-start)
	for _, idx := range window[start:] {
		keep[idx] = true
	}
	out := make([]*chat.Message, 0, len(keep)+len(msgs)-len(nonSystem))
	for i, m := range msgs {
		if m.Role == chat.RoleSystem || keep[i] {
			out = append(out, m)
		}
	}
	return out
}
