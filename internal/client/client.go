package client

import (
	"context"

	"google.golang.org/genai"

	"comfypilot/internal/chat"
)

// ModelInfo describes a model offered by a provider.
type ModelInfo struct {
	ID          string // Model identifier (e.g., "gemini-2.5-flash", "qwen2.5:7b")
	Name        string // Human-readable name
	Description string // Short description
	Provider    string // "gemini" or "ollama"
}

// AvailableModels is the list of suggested models across providers.
var AvailableModels = []ModelInfo{
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Description: "Fast, good at tool calling",
		Provider:    "gemini",
	},
	{
		ID:          "gemini-2.5-pro",
		Name:        "Gemini 2.5 Pro",
		Description: "Most capable Gemini model",
		Provider:    "gemini",
	},
	{
		ID:          "qwen2.5:7b",
		Name:        "Qwen 2.5 7B (Ollama)",
		Description: "Local model with native tool calls",
		Provider:    "ollama",
	},
	{
		ID:          "llama3.1:8b",
		Name:        "Llama 3.1 8B (Ollama)",
		Description: "Local model with native tool calls",
		Provider:    "ollama",
	},
}

// GetModelsForProvider returns models filtered by provider.
func GetModelsForProvider(provider string) []ModelInfo {
	var models []ModelInfo
	for _, m := range AvailableModels {
		if m.Provider == provider {
			models = append(models, m)
		}
	}
	return models
}

// Provider streams one model response per request.
type Provider interface {
	// Name returns the provider identifier ("gemini", "ollama").
	Name() string

	// Model returns the model name requests are sent to.
	Model() string

	// Stream sends req and returns the response as typed events. The channel
	// is closed after an EventFinish or EventError. An error is returned only
	// when the request could not be started.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// Request is one outbound model call.
type Request struct {
	// Messages in model order: system messages first, then the
	// conversation with one tool message per result.
	Messages []*chat.Message

	// Tools declared to the model.
	Tools []*genai.FunctionDeclaration
}

// System returns the concatenated text of the system messages.
func (r Request) System() string {
	var text string
	for _, m := range r.Messages {
		if m.Role != chat.RoleSystem {
			continue
		}
		if text != "" {
			text += "\n\n"
		}
		text += m.Text()
	}
	return text
}

// Conversation returns the non-system messages.
func (r Request) Conversation() []*chat.Message {
	out := make([]*chat.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != chat.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// EventType identifies a stream event.
type EventType int

const (
	EventTextDelta EventType = iota
	EventReasoningDelta
	EventToolCallDelta
	EventToolCallComplete
	EventFinish
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTextDelta:
		return "text-delta"
	case EventReasoningDelta:
		return "reasoning-delta"
	case EventToolCallDelta:
		return "tool-call-delta"
	case EventToolCallComplete:
		return "tool-call-complete"
	case EventFinish:
		return "finish"
	case EventError:
		return "error"
	}
	return "unknown"
}

// FinishReason says why the model stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
)

// Event is one element of a response stream.
type Event struct {
	Type EventType

	// Text carries text and reasoning deltas.
	Text string

	// Index, CallID, Name and ArgsDelta describe a streamed tool-call
	// fragment. Only the first fragment of a call needs CallID and Name.
	Index     int
	CallID    string
	Name      string
	ArgsDelta string

	// Call is set on EventToolCallComplete.
	Call *chat.ToolCall

	// Reason and Usage are set on EventFinish.
	Reason FinishReason
	Usage  Usage

	// Err is set on EventError.
	Err error
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// send delivers ev unless ctx is done.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}
