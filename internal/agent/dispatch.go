package agent

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"comfypilot/internal/chat"
	"comfypilot/internal/guardrail"
	"comfypilot/internal/logging"
	"comfypilot/internal/tools"
)

// completion is one finished tool call.
type completion struct {
	result chat.ToolResult
	record guardrail.CallRecord
}

// dispatchRound executes the calls of one assistant message in call order.
// A contiguous run of concurrent tools (remote and not serial) runs in
// parallel; every other call runs alone, so calls that change the graph or
// the environment see the effects of the calls before them. Each completion
// is appended to the message and evaluated at once. The returned decision
// is the strongest one seen, and the records are in execution order.
func (c *Controller) dispatchRound(ctx context.Context, lineage, msgID string, calls []chat.ToolCall, h *Handler) (Decision, []guardrail.CallRecord) {
	records := make([]guardrail.CallRecord, 0, len(calls))
	decision := DecisionWait
	var mu sync.Mutex

	complete := func(done completion) {
		d := c.appendResult(lineage, msgID, done.result, h)

		mu.Lock()
		records = append(records, done.record)
		if rank(d) > rank(decision) {
			decision = d
		}
		mu.Unlock()
	}

	for i := 0; i < len(calls); {
		j := i
		for j < len(calls) && c.concurrent(calls[j]) {
			j++
		}
		if j-i < 2 {
			complete(c.runTool(ctx, calls[i], h))
			i++
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.maxParallel)
		for _, call := range calls[i:j] {
			g.Go(func() error {
				complete(c.runTool(gctx, call, h))
				return nil
			})
		}
		_ = g.Wait()
		i = j
	}

	return decision, records
}

// concurrent reports whether call may share a parallel batch. Unknown
// tools fail fast and count as serial.
func (c *Controller) concurrent(call chat.ToolCall) bool {
	def, ok := c.registry.Get(call.Name)
	return ok && def.Concurrent()
}

// runTool dispatches one call and shapes its output for history.
func (c *Controller) runTool(ctx context.Context, call chat.ToolCall, h *Handler) completion {
	h.toolStart(call)

	var result tools.Result
	if ctx.Err() != nil {
		result = tools.Errorf("%s was not run: the turn was cancelled", call.Name)
	} else {
		result = c.registry.Dispatch(ctx, call.Name, call.Args)
	}
	output := plainEnvelope(result)

	res := c.compressor.CompressResult(chat.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
		Output: output,
	})

	h.toolResult(res)
	return completion{
		result: res,
		record: guardrail.CallRecord{Name: call.Name, Args: call.Args, Output: output},
	}
}

// appendResult adds a result part to the newest assistant message and
// evaluates the transition rule against the updated message.
func (c *Controller) appendResult(lineage, msgID string, res chat.ToolResult, h *Handler) Decision {
	snapshot, ok := c.thread.UpdateMessage(msgID, func(m *chat.Message) {
		m.Parts = append(m.Parts, chat.ResultPart(res))
	})
	if !ok {
		logging.Warn("dropping tool result for a message that is no longer newest",
			"tool", res.Name, "call", res.CallID, "message", msgID)
		return DecisionStale
	}

	d := c.loop.Evaluate(lineage, snapshot)
	logging.Debug("evaluated tool completion",
		"tool", res.Name,
		"decision", d.String(),
		"round", c.loop.Round())
	return d
}

// plainEnvelope turns a Result into the wire envelope with only JSON
// types inside, so compression and persistence see what the model sees.
func plainEnvelope(r tools.Result) map[string]any {
	envelope := r.ToMap()
	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Warn("tool result is not JSON encodable", "error", err)
		return tools.Errorf("tool result could not be encoded: %s", err).ToMap()
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return tools.Errorf("tool result could not be decoded: %s", err).ToMap()
	}
	return out
}

// rank orders decisions so one round reports the outcome that matters.
func rank(d Decision) int {
	switch d {
	case DecisionResubmit, DecisionCapReached:
		return 3
	case DecisionStale:
		return 2
	case DecisionWait:
		return 0
	default:
		return 1
	}
}
