package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind identifies the content carried by a Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartToolCall   PartKind = "tool-call"
	PartToolResult PartKind = "tool-result"
)

// ToolCall is a model request to run a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	// Signature is opaque provider state that must be sent back with the
	// call on the next request (Gemini thought signatures).
	Signature []byte `json:"signature,omitempty"`
}

// ToolResult answers the ToolCall with the same ID.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Output   map[string]any `json:"output"`
	Redacted bool           `json:"redacted,omitempty"`
}

// Part is one element of a message.
type Part struct {
	Kind   PartKind    `json:"kind"`
	Text   string      `json:"text,omitempty"`
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}

// Message is one conversation turn unit.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, parts ...Part) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a system message holding text.
func NewSystemMessage(text string) *Message {
	return NewMessage(RoleSystem, TextPart(text))
}

// NewUserMessage creates a user message holding text.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, TextPart(text))
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(parts ...Part) *Message {
	return NewMessage(RoleAssistant, parts...)
}

// NewToolMessage creates a tool-role message carrying one result.
func NewToolMessage(result ToolResult) *Message {
	return NewMessage(RoleTool, ResultPart(result))
}

// TextPart builds a text part.
func TextPart(text string) Part { return Part{Kind: PartText, Text: text} }

// ReasoningPart builds a reasoning part.
func ReasoningPart(text string) Part { return Part{Kind: PartReasoning, Text: text} }

// CallPart builds a tool-call part.
func CallPart(call ToolCall) Part { return Part{Kind: PartToolCall, Call: &call} }

// ResultPart builds a tool-result part.
func ResultPart(result ToolResult) Part { return Part{Kind: PartToolResult, Result: &result} }

// Text returns the concatenated text parts.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool-call requests in order.
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Kind == PartToolCall && p.Call != nil {
			calls = append(calls, *p.Call)
		}
	}
	return calls
}

// ToolResults returns the tool results in order.
func (m *Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if p.Kind == PartToolResult && p.Result != nil {
			results = append(results, *p.Result)
		}
	}
	return results
}

// HasToolCalls reports whether the message requests any tool.
func (m *Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if p.Kind == PartToolCall {
			return true
		}
	}
	return false
}

// PendingCalls returns the calls that have no result part yet.
func (m *Message) PendingCalls() []ToolCall {
	answered := make(map[string]bool)
	for _, r := range m.ToolResults() {
		answered[r.CallID] = true
	}
	var pending []ToolCall
	for _, c := range m.ToolCalls() {
		if !answered[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending
}

// LastPart returns the final part, or false for an empty message.
func (m *Message) LastPart() (Part, bool) {
	if len(m.Parts) == 0 {
		return Part{}, false
	}
	return m.Parts[len(m.Parts)-1], true
}

// Clone returns a deep copy of the message. Args and Output maps are
// copied one level deep, which is enough for redaction and trimming.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		cp := p
		if p.Call != nil {
			call := *p.Call
			call.Args = cloneMap(p.Call.Args)
			cp.Call = &call
		}
		if p.Result != nil {
			res := *p.Result
			res.Output = cloneMap(p.Result.Output)
			cp.Result = &res
		}
		out.Parts[i] = cp
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CountRole counts messages with the given role.
func CountRole(msgs []*Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}
