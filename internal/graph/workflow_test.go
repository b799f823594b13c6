package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/graph"
	"comfypilot/internal/graph/graphtest"
)

func TestAddNodePopulatesDefaults(t *testing.T) {
	w := graph.NewWorkflow(graphtest.Catalog())

	n, err := w.AddNode("KSampler", "", map[string]any{"steps": float64(30)})
	require.NoError(t, err)

	assert.Equal(t, 1, n.ID)
	assert.Equal(t, []string{"seed", "steps", "cfg", "sampler_name", "scheduler", "denoise"}, n.WidgetNames())
	assert.Equal(t, int64(30), n.Widgets[1].Value)
	assert.Equal(t, "euler", n.Widgets[3].Value)
}

func TestAddNodeUnknownType(t *testing.T) {
	w := graph.NewWorkflow(graphtest.Catalog())

	_, err := w.AddNode("KSamplerAdvancedPlus", "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrUnknownNodeType))
	assert.Contains(t, err.Error(), "KSampler")
	assert.Equal(t, 0, w.Len())
}

func TestSetWidgetUnknownListsAvailable(t *testing.T) {
	w := graph.NewWorkflow(graphtest.Catalog())
	n, err := w.AddNode("KSampler", "", nil)
	require.NoError(t, err)

	_, err = w.SetWidget(n.ID, "step_count", 30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrUnknownWidget))
	assert.Contains(t, err.Error(), "available widgets: seed, steps, cfg, sampler_name, scheduler, denoise")
}

func TestSetWidgetChecksValue(t *testing.T) {
	w := graph.NewWorkflow(graphtest.Catalog())
	n, _ := w.AddNode("KSampler", "", nil)

	cases := []struct {
		name   string
		widget string
		value  any
		ok     bool
	}{
		{"integer from json number", "steps", float64(25), true},
		{"fractional integer", "steps", 2.5, false},
		{"below minimum", "steps", float64(0), false},
		{"float", "cfg", 6.5, true},
		{"combo option", "sampler_name", "dpmpp_2m", true},
		{"combo not offered", "sampler_name", "lcm", false},
		{"wrong type", "cfg", "high", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.SetWidget(n.ID, tc.widget, tc.value)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, graph.ErrInvalidValue), "got %v", err)
			}
		})
	}
}

func TestConnectAndRemove(t *testing.T) {
	w := graph.NewWorkflow(graphtest.Catalog())
	ckpt, _ := w.AddNode("CheckpointLoaderSimple", "", nil)
	ks, _ := w.AddNode("KSampler", "", nil)

	require.NoError(t, w.Connect(ckpt.ID, 0, ks.ID, "model"))

	err := w.Connect(ckpt.ID, 1, ks.ID, "model")
	assert.True(t, errors.Is(err, graph.ErrTypeMismatch))

	err = w.Connect(ckpt.ID, 0, ks.ID, "unet")
	assert.True(t, errors.Is(err, graph.ErrUnknownInput))
	assert.Contains(t, err.Error(), "model, positive, negative, latent_image")

	require.NoError(t, w.RemoveNode(ckpt.ID))
	got, ok := w.Node(ks.ID)
	require.True(t, ok)
	assert.Nil(t, got.Inputs[0].Link)

	assert.True(t, errors.Is(w.RemoveNode(99), graph.ErrNodeNotFound))
}

func TestAPIRoundTrip(t *testing.T) {
	w := graph.NewWorkflow(graphtest.Catalog())
	ckpt, _ := w.AddNode("CheckpointLoaderSimple", "Loader", nil)
	ks, _ := w.AddNode("KSampler", "", map[string]any{"steps": 12})
	require.NoError(t, w.Connect(ckpt.ID, 0, ks.ID, "model"))

	prompt := w.ToAPI()
	assert.Equal(t, []any{"1", 0}, prompt["2"].Inputs["model"])

	parsed, err := graph.ParseAPI(prompt)
	require.NoError(t, err)
	nodes, err := graph.NodesFromAPI(parsed, graphtest.Catalog())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Loader", nodes[0].Title)
	assert.Equal(t, 1, nodes[1].Inputs[0].Link.FromNode)
	assert.Equal(t, "seed", nodes[1].Widgets[0].Name)
}

func TestNodesFromAPIRejectsDanglingLink(t *testing.T) {
	prompt := graph.APIPrompt{"5": {ClassType: "VAEDecode", Inputs: map[string]any{"samples": []any{"9", float64(0)}}}}
	_, err := graph.NodesFromAPI(prompt, graphtest.Catalog())
	assert.ErrorContains(t, err, "missing node 9")
}

func TestValidateReportsMissing(t *testing.T) {
	prompt := graph.APIPrompt{
		"1": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{"ckpt_name": "dreamshaper_8.safetensors"}},
		"2": {ClassType: "IPAdapterApply", Inputs: map[string]any{"weight": 0.8}},
	}
	nodes, err := graph.NodesFromAPI(prompt, graphtest.Catalog())
	require.NoError(t, err)

	report := graph.Validate(nodes, graphtest.Catalog(), graphtest.NewRegistry())
	require.False(t, report.OK())
	require.Len(t, report.Missing, 2)
	assert.Equal(t, "node_type", report.Missing[0].Kind)
	assert.Equal(t, "IPAdapterApply", report.Missing[0].Name)
	assert.Equal(t, "model", report.Missing[1].Kind)
	assert.Contains(t, report.Missing[1].String(), "missing model dreamshaper_8.safetensors in checkpoints")
	assert.Contains(t, report.Missing[1].Hint, "sd_xl_base_1.0.safetensors")
}

func TestSummarize(t *testing.T) {
	before := graph.APIPrompt{"1": {ClassType: "KSampler", Inputs: map[string]any{"steps": 20}}}
	after := graph.APIPrompt{"1": {ClassType: "KSampler", Inputs: map[string]any{"steps": 30}}}

	s := graph.Summarize(before, after, 0)
	assert.Equal(t, 1, s.Added)
	assert.Equal(t, 1, s.Removed)
	assert.Contains(t, s.Diff, "+      \"steps\": 30")
}
