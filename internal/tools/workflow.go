package tools

import (
	"context"
	"time"

	"google.golang.org/genai"

	"comfypilot/internal/comfy"
	"comfypilot/internal/graph"
	"comfypilot/internal/logging"
)

// Runner executes API-format prompts on the backend. comfy.Client implements it.
type Runner interface {
	Run(ctx context.Context, prompt any, onProgress func(comfy.Progress)) (*comfy.Outcome, error)
}

// ExecuteTimeout bounds a full workflow execution.
const ExecuteTimeout = 10 * time.Minute

const maxDiffChars = 2000

// WorkflowTools returns validateWorkflow, applyWorkflow and, when runner is
// non-nil, executeWorkflow. Apply and execute validate on their own and
// never trust an earlier validateWorkflow call.
func WorkflowTools(w *graph.Workflow, env Environment, runner Runner) []Definition {
	wt := &workflowTools{w: w, env: env, runner: runner}
	defs := []Definition{
		{
			Name:        "validateWorkflow",
			Description: "Check every node type and model filename of a workflow against what is installed. Without a workflow argument, validates the current graph. Always call this before applyWorkflow.",
			Parameters: object(map[string]*genai.Schema{
				"workflow": stringProp("Workflow in ComfyUI API format as a JSON string; omit to validate the current graph"),
			}),
			Kind:    KindRemote,
			Execute: Bind(wt.validate),
		},
		{
			Name:        "applyWorkflow",
			Description: "Replace the current graph with a complete workflow in ComfyUI API format. The workflow is validated again and is refused if any node type or model is not installed.",
			Parameters: object(map[string]*genai.Schema{
				"workflow": stringProp("Workflow in ComfyUI API format as a JSON string"),
			}, "workflow"),
			Kind:    KindRemote,
			Serial:  true,
			Execute: Bind(wt.apply),
		},
	}
	if runner != nil {
		defs = append(defs, Definition{
			Name:        "executeWorkflow",
			Description: "Queue the current graph on ComfyUI and wait for it to finish. Returns executed nodes and output image filenames.",
			Parameters:  object(nil),
			Kind:        KindRemote,
			Serial:      true,
			Timeout:     ExecuteTimeout,
			Execute:     Bind(wt.execute),
		})
	}
	return defs
}

type workflowTools struct {
	w      *graph.Workflow
	env    Environment
	runner Runner
}

type workflowParams struct {
	Workflow string `json:"workflow"`
}

// check validates nodes against a fresh inventory. A failed refresh blocks:
// nothing unverified gets through.
func (wt *workflowTools) check(ctx context.Context, nodes []graph.Node) (graph.Report, Result, bool) {
	if err := wt.env.EnsureFresh(ctx); err != nil {
		if r, ok := timedOut(ctx, "environment scan"); ok {
			return graph.Report{}, r, false
		}
		return graph.Report{}, Errorf("cannot verify installed node types and models: %s", err), false
	}
	return graph.Validate(nodes, wt.env, wt.env), Result{}, true
}

func (wt *workflowTools) parse(raw string) ([]graph.Node, Result, bool) {
	prompt, err := graph.ParseAPI(raw)
	if err != nil {
		return nil, NewErrorResult(err.Error()), false
	}
	nodes, err := graph.NodesFromAPI(prompt, wt.env)
	if err != nil {
		return nil, NewErrorResult(err.Error()), false
	}
	return nodes, Result{}, true
}

func (wt *workflowTools) validate(ctx context.Context, p workflowParams) Result {
	nodes := wt.w.Nodes()
	if p.Workflow != "" {
		var res Result
		var ok bool
		if nodes, res, ok = wt.parse(p.Workflow); !ok {
			return res
		}
	}
	if len(nodes) == 0 {
		return NewErrorResult("the workflow is empty; nothing to validate")
	}

	report, res, ok := wt.check(ctx, nodes)
	if !ok {
		return res
	}
	return NewSuccessResult(map[string]any{
		"valid":      report.OK(),
		"summary":    report.Summary(),
		"references": report.References,
		"missing":    report.Missing,
	})
}

func (wt *workflowTools) apply(ctx context.Context, p workflowParams) Result {
	nodes, res, ok := wt.parse(p.Workflow)
	if !ok {
		return res
	}
	report, res, ok := wt.check(ctx, nodes)
	if !ok {
		return res
	}
	if !report.OK() {
		logging.Warn("workflow apply blocked", "missing", len(report.Missing))
		return Errorf("workflow not applied: %s. Ask the user to install or select the missing items", report.Summary())
	}

	before := wt.w.ToAPI()
	wt.w.Replace(nodes)
	changes := graph.Summarize(before, wt.w.ToAPI(), maxDiffChars)

	return NewSuccessResult(map[string]any{
		"applied":    true,
		"node_count": len(nodes),
		"changes":    changes,
	})
}

func (wt *workflowTools) execute(ctx context.Context, _ struct{}) Result {
	nodes := wt.w.Nodes()
	if len(nodes) == 0 {
		return NewErrorResult("the workflow is empty; add or apply nodes first")
	}
	report, res, ok := wt.check(ctx, nodes)
	if !ok {
		return res
	}
	if !report.OK() {
		return Errorf("workflow not executed: %s", report.Summary())
	}

	out, err := wt.runner.Run(ctx, graph.NodesToAPI(nodes), func(p comfy.Progress) {
		logging.Debug("execution progress", "prompt_id", p.PromptID, "node", p.Node, "value", p.Value, "max", p.Max)
	})
	if err != nil {
		if r, ok := timedOut(ctx, "workflow execution"); ok {
			return r
		}
		return Errorf("execution failed: %s", err)
	}
	return NewSuccessResult(out)
}
