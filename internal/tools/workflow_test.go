package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/comfy"
	"comfypilot/internal/graph"
	"comfypilot/internal/graph/graphtest"
)

func txt2img(ckpt, sampler string) string {
	return fmt.Sprintf(`{
  "1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": %q}},
  "2": {"class_type": "CLIPTextEncode", "inputs": {"text": "a lighthouse at dusk", "clip": ["1", 1]}},
  "3": {"class_type": "CLIPTextEncode", "inputs": {"text": "blurry", "clip": ["1", 1]}},
  "4": {"class_type": "EmptyLatentImage", "inputs": {"width": 1024, "height": 1024, "batch_size": 1}},
  "5": {"class_type": %q, "inputs": {"seed": 7, "steps": 25, "cfg": 6.5, "sampler_name": "euler", "scheduler": "karras", "denoise": 1,
        "model": ["1", 0], "positive": ["2", 0], "negative": ["3", 0], "latent_image": ["4", 0]}},
  "6": {"class_type": "VAEDecode", "inputs": {"samples": ["5", 0], "vae": ["1", 2]}},
  "7": {"class_type": "SaveImage", "inputs": {"filename_prefix": "lighthouse", "images": ["6", 0]}}
}`, ckpt, sampler)
}

type fakeRunner struct {
	prompt any
	out    *comfy.Outcome
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, prompt any, onProgress func(comfy.Progress)) (*comfy.Outcome, error) {
	f.prompt = prompt
	onProgress(comfy.Progress{PromptID: "p1", Node: "5", Value: 1, Max: 25})
	return f.out, f.err
}

func newWorkflowRegistry(t *testing.T, runner Runner) (*Registry, *graph.Workflow, *graphtest.Environment) {
	t.Helper()
	env := graphtest.NewEnvironment()
	w := graph.NewWorkflow(env)
	r := NewRegistry(5*time.Second, 30*time.Second)
	for _, def := range WorkflowTools(w, env, runner) {
		require.NoError(t, r.Register(def))
	}
	return r, w, env
}

func TestApplyWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a valid workflow", func(t *testing.T) {
		r, w, env := newWorkflowRegistry(t, nil)
		res := r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("sd_xl_base_1.0.safetensors", "KSampler")})
		require.True(t, res.Success, res.Error)

		data := res.Data.(map[string]any)
		assert.Equal(t, true, data["applied"])
		assert.Equal(t, 7, data["node_count"])
		changes := data["changes"].(graph.ChangeSummary)
		assert.Positive(t, changes.Added)
		assert.Zero(t, changes.Removed)
		assert.Equal(t, 7, w.Len())
		assert.Equal(t, int32(1), env.Scans.Load())
	})

	t.Run("blocks a missing model", func(t *testing.T) {
		r, w, _ := newWorkflowRegistry(t, nil)
		res := r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("flux1-dev.safetensors", "KSampler")})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "workflow not applied")
		assert.Contains(t, res.Error, "missing model flux1-dev.safetensors in checkpoints")
		assert.Contains(t, res.Error, "sd_xl_base_1.0.safetensors")
		assert.Zero(t, w.Len())
	})

	t.Run("blocks a missing node type", func(t *testing.T) {
		r, w, _ := newWorkflowRegistry(t, nil)
		res := r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("sd_xl_base_1.0.safetensors", "KSamplerAdvancedPlus")})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "missing node type KSamplerAdvancedPlus")
		assert.Zero(t, w.Len())
	})

	t.Run("blocks when the environment cannot be scanned", func(t *testing.T) {
		r, w, env := newWorkflowRegistry(t, nil)
		env.ScanErr = errors.New("connection refused")
		res := r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("sd_xl_base_1.0.safetensors", "KSampler")})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "cannot verify installed node types and models: connection refused")
		assert.Zero(t, w.Len())
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		r, _, _ := newWorkflowRegistry(t, nil)
		res := r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": `{"1": `})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "not valid API-format JSON")
	})

	t.Run("replacing reports removed lines", func(t *testing.T) {
		r, w, _ := newWorkflowRegistry(t, nil)
		require.True(t, r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("sd_xl_base_1.0.safetensors", "KSampler")}).Success)
		res := r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("v1-5-pruned-emaonly.safetensors", "KSampler")})
		require.True(t, res.Success, res.Error)
		changes := res.Data.(map[string]any)["changes"].(graph.ChangeSummary)
		assert.Equal(t, 1, changes.Added)
		assert.Equal(t, 1, changes.Removed)
		assert.Contains(t, changes.Diff, "v1-5-pruned-emaonly")

		n, _ := w.Node(1)
		assert.Contains(t, n.Widgets, graph.Widget{Name: "ckpt_name", Value: "v1-5-pruned-emaonly.safetensors"})
	})
}

func TestValidateWorkflow(t *testing.T) {
	ctx := context.Background()
	r, w, _ := newWorkflowRegistry(t, nil)

	res := r.Dispatch(ctx, "validateWorkflow", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "the workflow is empty")

	res = r.Dispatch(ctx, "validateWorkflow", map[string]any{"workflow": txt2img("flux1-dev.safetensors", "KSampler")})
	require.True(t, res.Success, res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, false, data["valid"])
	missing := data["missing"].([]graph.Missing)
	require.Len(t, missing, 1)
	assert.Equal(t, "model", missing[0].Kind)
	assert.Equal(t, 1, missing[0].NodeID)
	assert.Zero(t, w.Len(), "validation must not touch the graph")

	_, err := w.AddNode("CheckpointLoaderSimple", "", nil)
	require.NoError(t, err)
	res = r.Dispatch(ctx, "validateWorkflow", map[string]any{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, res.Data.(map[string]any)["valid"])
}

func TestExecuteWorkflow(t *testing.T) {
	ctx := context.Background()

	r, _, _ := newWorkflowRegistry(t, nil)
	_, ok := r.Get("executeWorkflow")
	assert.False(t, ok, "executeWorkflow needs a runner")

	runner := &fakeRunner{out: &comfy.Outcome{PromptID: "p1", Executed: []string{"7"}, Images: []string{"lighthouse_00001_.png"}}}
	r, w, env := newWorkflowRegistry(t, runner)
	def, ok := r.Get("executeWorkflow")
	require.True(t, ok)
	assert.Equal(t, ExecuteTimeout, def.Timeout)

	res := r.Dispatch(ctx, "executeWorkflow", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "the workflow is empty")

	require.True(t, r.Dispatch(ctx, "applyWorkflow", map[string]any{"workflow": txt2img("sd_xl_base_1.0.safetensors", "KSampler")}).Success)
	res = r.Dispatch(ctx, "executeWorkflow", nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, runner.out, res.Data)
	assert.Len(t, runner.prompt.(graph.APIPrompt), w.Len())

	// A model deleted since apply blocks execution.
	env.ModelsByDir["checkpoints"] = []string{"v1-5-pruned-emaonly.safetensors"}
	runner.prompt = nil
	res = r.Dispatch(ctx, "executeWorkflow", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "workflow not executed")
	assert.Nil(t, runner.prompt)

	env.ModelsByDir["checkpoints"] = []string{"sd_xl_base_1.0.safetensors"}
	runner.err = errors.New("CUDA out of memory")
	res = r.Dispatch(ctx, "executeWorkflow", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "execution failed: CUDA out of memory", res.Error)
}

func TestEnvironmentTools(t *testing.T) {
	ctx := context.Background()
	env := graphtest.NewEnvironment()
	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(EnvironmentTools(env)...)

	res := r.Dispatch(ctx, "searchInstalledNodes", map[string]any{"query": "KSampler"})
	require.True(t, res.Success, res.Error)
	nodes := res.Data.(map[string]any)["nodes"].([]graph.NodeDef)
	require.NotEmpty(t, nodes)
	assert.Equal(t, "KSampler", nodes[0].Name)

	res = r.Dispatch(ctx, "searchInstalledNodes", map[string]any{"query": "zzzz"})
	require.True(t, res.Success)
	assert.Contains(t, res.Data.(map[string]any)["note"], "no installed node type matches")

	res = r.Dispatch(ctx, "getInstalledModels", nil)
	require.True(t, res.Success)
	assert.Equal(t, []string{"checkpoints"}, res.Data.(map[string]any)["folders"])

	res = r.Dispatch(ctx, "getInstalledModels", map[string]any{"folder": "checkpoints"})
	require.True(t, res.Success)
	assert.Len(t, res.Data.(map[string]any)["models"], 2)

	res = r.Dispatch(ctx, "getInstalledModels", map[string]any{"folder": "loras"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `no models installed in "loras"`)

	res = r.Dispatch(ctx, "refreshEnvironment", nil)
	require.True(t, res.Success)
	assert.Equal(t, 6, res.Data.(map[string]any)["node_types"])

	env.ScanErr = errors.New("backend down")
	res = r.Dispatch(ctx, "refreshEnvironment", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "backend down")
}

func TestStateChangingToolsAreSerial(t *testing.T) {
	env := graphtest.NewEnvironment()
	w := graph.NewWorkflow(env)

	concurrent := make(map[string]bool)
	defs := append(WorkflowTools(w, env, &fakeRunner{}), EnvironmentTools(env)...)
	defs = append(defs, GraphTools(w)...)
	for _, def := range defs {
		concurrent[def.Name] = def.Concurrent()
	}

	assert.True(t, concurrent["validateWorkflow"])
	assert.True(t, concurrent["searchInstalledNodes"])
	assert.True(t, concurrent["getInstalledModels"])
	for _, name := range []string{"applyWorkflow", "executeWorkflow", "refreshEnvironment", "addNode", "setNodeWidgetValue"} {
		assert.False(t, concurrent[name], name)
	}
}
