package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/graph"
	"comfypilot/internal/graph/graphtest"
)

func newGraphRegistry(t *testing.T) (*Registry, *graph.Workflow) {
	t.Helper()
	w := graph.NewWorkflow(graphtest.Catalog())
	r := NewRegistry(5*time.Second, 30*time.Second)
	for _, def := range GraphTools(w) {
		require.NoError(t, r.Register(def))
	}
	return r, w
}

func TestGraphTools(t *testing.T) {
	r, w := newGraphRegistry(t)
	ctx := context.Background()

	t.Run("add node", func(t *testing.T) {
		res := r.Dispatch(ctx, "addNode", map[string]any{
			"nodeType": "CheckpointLoaderSimple",
		})
		require.True(t, res.Success, res.Error)
		node := res.Data.(map[string]any)["node"].(graph.Node)
		assert.Equal(t, 1, node.ID)

		res = r.Dispatch(ctx, "addNode", map[string]any{
			"nodeType": "KSampler",
			"widgets":  map[string]any{"steps": 30.0},
		})
		require.True(t, res.Success, res.Error)
		node = res.Data.(map[string]any)["node"].(graph.Node)
		assert.Equal(t, 2, node.ID)
		assert.Contains(t, node.Widgets, graph.Widget{Name: "steps", Value: int64(30)})
	})

	t.Run("add unknown type", func(t *testing.T) {
		res := r.Dispatch(ctx, "addNode", map[string]any{"nodeType": "KSamplerTurbo"})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "KSamplerTurbo is not installed")
		assert.Contains(t, res.Error, "KSampler")
		assert.Equal(t, 2, w.Len())
	})

	t.Run("connect", func(t *testing.T) {
		res := r.Dispatch(ctx, "connectNodes", map[string]any{
			"fromNodeId": 1.0, "fromSlot": 0.0, "toNodeId": 2.0, "inputName": "model",
		})
		require.True(t, res.Success, res.Error)

		res = r.Dispatch(ctx, "connectNodes", map[string]any{
			"fromNodeId": 1.0, "fromSlot": 1.0, "toNodeId": 2.0, "inputName": "model",
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "expects MODEL")
	})

	t.Run("unknown widget lists available widgets", func(t *testing.T) {
		res := r.Dispatch(ctx, "setNodeWidgetValue", map[string]any{
			"nodeId": 2.0, "widgetName": "sampler", "value": "euler",
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, `"sampler" is not a widget of node 2 (KSampler)`)
		assert.Contains(t, res.Error, "seed, steps, cfg, sampler_name, scheduler, denoise")

		n, _ := w.Node(2)
		assert.Contains(t, n.Widgets, graph.Widget{Name: "sampler_name", Value: "euler"})
	})

	t.Run("set widget", func(t *testing.T) {
		res := r.Dispatch(ctx, "setNodeWidgetValue", map[string]any{
			"nodeId": 2.0, "widgetName": "sampler_name", "value": "dpmpp_2m",
		})
		require.True(t, res.Success, res.Error)

		res = r.Dispatch(ctx, "setNodeWidgetValue", map[string]any{
			"nodeId": 2.0, "widgetName": "denoise", "value": 3.0,
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "must be <= 1")
	})

	t.Run("schema rejects a missing value", func(t *testing.T) {
		res := r.Dispatch(ctx, "setNodeWidgetValue", map[string]any{"nodeId": 2.0, "widgetName": "steps"})
		assert.False(t, res.Success)
		assert.Equal(t, "value: required field is missing", res.Error)
	})

	t.Run("get node and workflow", func(t *testing.T) {
		res := r.Dispatch(ctx, "getNode", map[string]any{"nodeId": 9.0})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "node 9 does not exist")

		res = r.Dispatch(ctx, "getWorkflow", nil)
		require.True(t, res.Success)
		data := res.Data.(map[string]any)
		assert.Equal(t, 2, data["node_count"])
		prompt := data["prompt"].(graph.APIPrompt)
		assert.Equal(t, []any{"1", 0}, prompt["2"].Inputs["model"])
		assert.Equal(t, "dpmpp_2m", prompt["2"].Inputs["sampler_name"])
	})

	t.Run("remove and clear", func(t *testing.T) {
		res := r.Dispatch(ctx, "removeNode", map[string]any{"nodeId": 1.0})
		require.True(t, res.Success)
		n, _ := w.Node(2)
		assert.Nil(t, n.Inputs[0].Link)

		res = r.Dispatch(ctx, "clearWorkflow", nil)
		require.True(t, res.Success)
		assert.Equal(t, 1, res.Data.(map[string]any)["removed"])
		assert.Equal(t, 0, w.Len())
	})
}
