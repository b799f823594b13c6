package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"comfypilot/internal/chat"
	"comfypilot/internal/logging"
)

// ToolCallAssembler joins streamed tool-call fragments. A call is released
// only once its argument JSON is a complete object.
type ToolCallAssembler struct {
	pending map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// NewToolCallAssembler creates an empty assembler.
func NewToolCallAssembler() *ToolCallAssembler {
	return &ToolCallAssembler{pending: make(map[int]*pendingCall)}
}

// Add records one EventToolCallDelta.
func (a *ToolCallAssembler) Add(ev Event) {
	p, ok := a.pending[ev.Index]
	if !ok {
		p = &pendingCall{}
		a.pending[ev.Index] = p
	}
	if ev.CallID != "" {
		p.id = ev.CallID
	}
	if ev.Name != "" {
		p.name = ev.Name
	}
	p.args.WriteString(ev.ArgsDelta)
}

// Len returns the number of calls still being assembled.
func (a *ToolCallAssembler) Len() int {
	return len(a.pending)
}

// Flush returns the complete calls in index order and drops everything.
// Calls whose arguments are not a complete JSON object are reported in
// incomplete and never returned as calls.
func (a *ToolCallAssembler) Flush() (calls []chat.ToolCall, incomplete []string) {
	indexes := make([]int, 0, len(a.pending))
	for i := range a.pending {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		p := a.pending[i]
		call, err := p.complete()
		if err != nil {
			logging.Warn("discarding incomplete tool call",
				"index", i,
				"tool", p.name,
				"error", err)
			incomplete = append(incomplete, p.name)
			continue
		}
		calls = append(calls, call)
	}
	a.pending = make(map[int]*pendingCall)
	return calls, incomplete
}

func (p *pendingCall) complete() (chat.ToolCall, error) {
	if p.name == "" {
		return chat.ToolCall{}, fmt.Errorf("missing tool name")
	}
	args, err := ParseArgs(p.args.String())
	if err != nil {
		return chat.ToolCall{}, err
	}
	id := p.id
	if id == "" {
		id = NewCallID()
	}
	return chat.ToolCall{ID: id, Name: p.name, Args: args}, nil
}

// ParseArgs decodes tool-call argument JSON. Empty input is an empty
// object; anything other than one complete JSON object is an error.
func ParseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("arguments are not complete JSON")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// NewCallID generates an ID for providers that do not assign one.
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Response is a fully consumed stream.
type Response struct {
	Text       string
	Reasoning  string
	Calls      []chat.ToolCall
	Incomplete []string
	Reason     FinishReason
	Usage      Usage
}

// Collect drains events into a Response. onEvent, if set, sees every event
// before it is accumulated. Complete calls are gated through a
// ToolCallAssembler; an EventError or a closed stream without EventFinish
// is returned as an error.
func Collect(ctx context.Context, events <-chan Event, onEvent func(Event)) (*Response, error) {
	resp := &Response{}
	asm := NewToolCallAssembler()
	var text, reasoning strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, &ProviderError{Message: "stream ended without a finish signal", Retryable: true}
			}
			if onEvent != nil {
				onEvent(ev)
			}

			switch ev.Type {
			case EventTextDelta:
				text.WriteString(ev.Text)
			case EventReasoningDelta:
				reasoning.WriteString(ev.Text)
			case EventToolCallDelta:
				asm.Add(ev)
			case EventToolCallComplete:
				if ev.Call != nil {
					resp.Calls = append(resp.Calls, *ev.Call)
				}
			case EventError:
				return nil, ev.Err
			case EventFinish:
				calls, incomplete := asm.Flush()
				resp.Calls = append(resp.Calls, calls...)
				resp.Incomplete = incomplete
				resp.Text = text.String()
				resp.Reasoning = reasoning.String()
				resp.Reason = ev.Reason
				resp.Usage = ev.Usage
				return resp, nil
			}
		}
	}
}
