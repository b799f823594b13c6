package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"comfypilot/internal/chat"
	"comfypilot/internal/client"
	appcontext "comfypilot/internal/context"
	"comfypilot/internal/graph"
	"comfypilot/internal/guardrail"
	"comfypilot/internal/logging"
	"comfypilot/internal/tools"
)

const (
	DefaultModelTimeout = 120 * time.Second
	DefaultMaxParallel  = 4

	saveTimeout = 5 * time.Second
)

// StopReason says why a turn ended.
type StopReason string

const (
	StopText          StopReason = "text"
	StopEmpty         StopReason = "empty"
	StopRoundCap      StopReason = "round-cap"
	StopProviderError StopReason = "provider-error"
	StopCancelled     StopReason = "cancelled"
	StopIncomplete    StopReason = "incomplete"
)

// TurnResult summarizes one user send.
type TurnResult struct {
	Rounds     int
	StopReason StopReason
	Notice     string
	Mode       appcontext.Mode
	Usage      client.Usage
	Violations []guardrail.Violation
}

// ThreadSaver persists a thread together with the workflow it built.
type ThreadSaver interface {
	SaveThread(ctx context.Context, t *chat.Thread, nodes []graph.Node) error
}

// Options configures a Controller.
type Options struct {
	Thread     *chat.Thread
	Provider   client.Provider
	Registry   *tools.Registry
	Assembler  *appcontext.Assembler
	Trimmer    *appcontext.Trimmer
	Compressor *appcontext.Compressor

	// Optional.
	Workflow     *graph.Workflow
	Saver        ThreadSaver
	RoundCap     int
	ModelTimeout time.Duration
	MaxParallel  int
}

// Controller runs the agentic loop for one thread.
type Controller struct {
	thread     *chat.Thread
	provider   client.Provider
	registry   *tools.Registry
	assembler  *appcontext.Assembler
	trimmer    *appcontext.Trimmer
	compressor *appcontext.Compressor
	workflow   *graph.Workflow
	saver      ThreadSaver

	loop         *LoopState
	modelTimeout time.Duration
	maxParallel  int

	turnMu     sync.Mutex // held for the whole turn
	mu         sync.Mutex
	state      State
	cancelTurn context.CancelFunc
}

// NewController creates a controller for opts.Thread.
func NewController(opts Options) *Controller {
	if opts.Thread == nil {
		opts.Thread = chat.NewThread()
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.Trimmer == nil {
		opts.Trimmer = appcontext.NewTrimmer(0, -1)
	}

	return &Controller{
		thread:       opts.Thread,
		provider:     opts.Provider,
		registry:     opts.Registry,
		assembler:    opts.Assembler,
		trimmer:      opts.Trimmer,
		compressor:   opts.Compressor,
		workflow:     opts.Workflow,
		saver:        opts.Saver,
		loop:         NewLoopState(opts.RoundCap),
		modelTimeout: opts.ModelTimeout,
		maxParallel:  opts.MaxParallel,
	}
}

// Thread returns the controller's thread.
func (c *Controller) Thread() *chat.Thread {
	return c.thread
}

// Loop returns the controller's loop state.
func (c *Controller) Loop() *LoopState {
	return c.loop
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State, h *Handler) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	h.stateChanged(s)
}

// Cancel aborts the in-flight turn, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTurn != nil {
		c.cancelTurn()
	}
}

// Send appends a user message and runs the loop until the model answers in
// text, the round cap is reached, or the turn fails. A turn already in
// flight on this thread is cancelled first; its late results are ignored.
func (c *Controller) Send(ctx context.Context, text string, h *Handler) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message is empty")
	}

	c.mu.Lock()
	if c.cancelTurn != nil {
		c.cancelTurn()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancelTurn = cancel
	lineage := c.loop.Reset()
	c.mu.Unlock()
	defer cancel()

	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	if err := turnCtx.Err(); err != nil {
		return &TurnResult{StopReason: StopCancelled}, err
	}

	start := time.Now()
	c.thread.Append(chat.NewUserMessage(text))

	result, records, err := c.run(turnCtx, lineage, h)
	c.setState(StateIdle, h)

	result.Violations = guardrail.Audit(records)
	for _, v := range result.Violations {
		logging.Warn("tool protocol violation",
			"thread", c.thread.ID,
			"tool", v.Tool,
			"rule", string(v.Rule),
			"detail", v.Message)
	}

	logging.Info("turn completed",
		"thread", c.thread.ID,
		"mode", result.Mode.String(),
		"rounds", result.Rounds,
		"stop", string(result.StopReason),
		"tool_calls", len(records),
		"duration", time.Since(start))

	c.save(ctx)
	return result, err
}

// run drives the state machine for one lineage.
func (c *Controller) run(ctx context.Context, lineage string, h *Handler) (*TurnResult, []guardrail.CallRecord, error) {
	result := &TurnResult{}
	var records []guardrail.CallRecord

	for requests := 0; ; requests++ {
		c.setState(StateAwaitingModel, h)

		req, mode := c.buildRequest(ctx)
		if requests == 0 {
			result.Mode = mode
		}

		msg, resp, err := c.stream(ctx, req, h)
		if err != nil {
			if ctx.Err() != nil {
				result.StopReason = StopCancelled
				return result, records, err
			}
			c.loop.Abandon(lineage)
			result.StopReason = StopProviderError
			result.Notice = client.FriendlyMessage(err)
			logging.Error("model request failed",
				"thread", c.thread.ID,
				"provider", c.provider.Name(),
				"error", err)
			h.notice(result.Notice)
			return result, records, nil
		}
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens

		c.setState(StateModelResponded, h)

		switch d := c.loop.Evaluate(lineage, msg); d {
		case DecisionWait:
		case DecisionStale:
			result.StopReason = StopCancelled
			return result, records, ctx.Err()
		default:
			result.StopReason = StopText
			if msg == nil || len(msg.Parts) == 0 {
				result.StopReason = StopEmpty
			}
			if n := responseNotice(resp); n != "" {
				result.Notice = n
				h.notice(n)
			}
			return result, records, nil
		}

		c.setState(StateDispatchingTools, h)
		decision, recs := c.dispatchRound(ctx, lineage, msg.ID, msg.PendingCalls(), h)
		records = append(records, recs...)

		switch decision {
		case DecisionResubmit:
			result.Rounds++
			continue
		case DecisionCapReached:
			result.StopReason = StopRoundCap
			result.Notice = fmt.Sprintf("Stopped after %d automatic tool rounds. Send a message to let the assistant continue.", c.loop.Cap())
			h.notice(result.Notice)
			return result, records, nil
		case DecisionStale:
			result.StopReason = StopCancelled
			return result, records, ctx.Err()
		default:
			result.StopReason = StopIncomplete
			return result, records, nil
		}
	}
}

// buildRequest assembles the outgoing request from the thread.
func (c *Controller) buildRequest(ctx context.Context) (client.Request, appcontext.Mode) {
	outgoing, mode := c.assembler.Prepare(ctx, c.thread.Messages())
	msgs := c.trimmer.Trim(chat.ToModelMessages(outgoing))
	return client.Request{
		Messages: msgs,
		Tools:    c.registry.Declarations(),
	}, mode
}

// stream makes one model call and accumulates it into a new assistant
// message. Tool calls are added once the stream has finished and their
// arguments are complete. The returned message is a snapshot, or nil when
// the model produced nothing.
func (c *Controller) stream(ctx context.Context, req client.Request, h *Handler) (*chat.Message, *client.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.modelTimeout)
	defer cancel()

	events, err := c.provider.Stream(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var msgID string
	update := func(fn func(m *chat.Message)) *chat.Message {
		if msgID == "" {
			m := chat.NewAssistantMessage()
			fn(m)
			msgID = m.ID
			c.thread.Append(m)
			return m.Clone()
		}
		snapshot, _ := c.thread.UpdateMessage(msgID, fn)
		return snapshot
	}

	resp, err := client.Collect(ctx, events, func(ev client.Event) {
		switch ev.Type {
		case client.EventTextDelta:
			update(func(m *chat.Message) { appendDelta(m, chat.PartText, ev.Text) })
			h.text(ev.Text)
		case client.EventReasoningDelta:
			update(func(m *chat.Message) { appendDelta(m, chat.PartReasoning, ev.Text) })
			h.reasoning(ev.Text)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	for _, name := range resp.Incomplete {
		logging.Warn("discarded tool call with incomplete arguments", "tool", name, "reason", string(resp.Reason))
	}
	if len(resp.Calls) == 0 {
		if msgID == "" {
			return nil, resp, nil
		}
		snapshot, _ := c.thread.Last()
		return snapshot, resp, nil
	}

	msg := update(func(m *chat.Message) {
		for _, call := range resp.Calls {
			m.Parts = append(m.Parts, chat.CallPart(call))
		}
	})
	return msg, resp, nil
}

// appendDelta extends the trailing part of the same kind or starts a new one.
func appendDelta(m *chat.Message, kind chat.PartKind, text string) {
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Kind == kind {
		m.Parts[n-1].Text += text
		return
	}
	m.Parts = append(m.Parts, chat.Part{Kind: kind, Text: text})
}

// responseNotice explains a finished response that did not end normally.
func responseNotice(resp *client.Response) string {
	switch {
	case len(resp.Incomplete) > 0:
		return fmt.Sprintf("The response was cut off before the %s call was complete, so it was not run.", strings.Join(resp.Incomplete, ", "))
	case resp.Reason == client.FinishLength:
		return "The response hit the output length limit and may be incomplete."
	case resp.Reason == client.FinishContentFilter:
		return "The model declined to answer this request."
	}
	return ""
}

// save persists the thread when a saver is configured.
func (c *Controller) save(ctx context.Context) {
	if c.saver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	var nodes []graph.Node
	if c.workflow != nil {
		nodes = c.workflow.Nodes()
	}
	if err := c.saver.SaveThread(ctx, c.thread, nodes); err != nil {
		logging.Warn("failed to save thread", "thread", c.thread.ID, "error", err)
	}
}
