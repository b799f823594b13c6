package agent

import "comfypilot/internal/chat"

// Handler receives turn progress. Every field is optional and a nil
// *Handler is valid. Tool callbacks may run on several goroutines at once.
type Handler struct {
	OnText       func(delta string)
	OnReasoning  func(delta string)
	OnToolStart  func(call chat.ToolCall)
	OnToolResult func(result chat.ToolResult)
	OnNotice     func(text string)
	OnState      func(s State)
}

func (h *Handler) text(delta string) {
	if h != nil && h.OnText != nil {
		h.OnText(delta)
	}
}

func (h *Handler) reasoning(delta string) {
	if h != nil && h.OnReasoning != nil {
		h.OnReasoning(delta)
	}
}

func (h *Handler) toolStart(call chat.ToolCall) {
	if h != nil && h.OnToolStart != nil {
		h.OnToolStart(call)
	}
}

func (h *Handler) toolResult(result chat.ToolResult) {
	if h != nil && h.OnToolResult != nil {
		h.OnToolResult(result)
	}
}

func (h *Handler) notice(text string) {
	if h != nil && h.OnNotice != nil {
		h.OnNotice(text)
	}
}

func (h *Handler) stateChanged(s State) {
	if h != nil && h.OnState != nil {
		h.OnState(s)
	}
}
