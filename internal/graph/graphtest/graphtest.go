// Package graphtest provides a small core-node catalog and a fake
// installed-capability registry for tests.
package graphtest

import (
	"context"
	"sort"
	"sync/atomic"

	"comfypilot/internal/graph"
)

func f(v float64) *float64 { return &v }

// Catalog returns definitions for a handful of core ComfyUI nodes.
func Catalog() graph.StaticCatalog {
	return graph.StaticCatalog{
		"CheckpointLoaderSimple": {
			Name:    "CheckpointLoaderSimple",
			Widgets: []graph.WidgetSpec{{Name: "ckpt_name", Type: graph.TypeCombo, Options: []string{"sd_xl_base_1.0.safetensors", "v1-5-pruned-emaonly.safetensors"}, ModelFolder: "checkpoints"}},
			Outputs: []string{"MODEL", "CLIP", "VAE"},
		},
		"CLIPTextEncode": {
			Name:    "CLIPTextEncode",
			Inputs:  []graph.InputSpec{{Name: "clip", Type: "CLIP"}},
			Widgets: []graph.WidgetSpec{{Name: "text", Type: graph.TypeString}},
			Outputs: []string{"CONDITIONING"},
		},
		"EmptyLatentImage": {
			Name: "EmptyLatentImage",
			Widgets: []graph.WidgetSpec{
				{Name: "width", Type: graph.TypeInt, Default: int64(1024), Min: f(16), Max: f(16384)},
				{Name: "height", Type: graph.TypeInt, Default: int64(1024), Min: f(16), Max: f(16384)},
				{Name: "batch_size", Type: graph.TypeInt, Default: int64(1), Min: f(1), Max: f(4096)},
			},
			Outputs: []string{"LATENT"},
		},
		"KSampler": {
			Name: "KSampler",
			Inputs: []graph.InputSpec{
				{Name: "model", Type: "MODEL"},
				{Name: "positive", Type: "CONDITIONING"},
				{Name: "negative", Type: "CONDITIONING"},
				{Name: "latent_image", Type: "LATENT"},
			},
			Widgets: []graph.WidgetSpec{
				{Name: "seed", Type: graph.TypeInt, Default: int64(0), Min: f(0)},
				{Name: "steps", Type: graph.TypeInt, Default: int64(20), Min: f(1), Max: f(10000)},
				{Name: "cfg", Type: graph.TypeFloat, Default: 8.0, Min: f(0), Max: f(100)},
				{Name: "sampler_name", Type: graph.TypeCombo, Options: []string{"euler", "euler_ancestral", "dpmpp_2m"}},
				{Name: "scheduler", Type: graph.TypeCombo, Options: []string{"normal", "karras"}},
				{Name: "denoise", Type: graph.TypeFloat, Default: 1.0, Min: f(0), Max: f(1)},
			},
			Outputs: []string{"LATENT"},
		},
		"VAEDecode": {
			Name:    "VAEDecode",
			Inputs:  []graph.InputSpec{{Name: "samples", Type: "LATENT"}, {Name: "vae", Type: "VAE"}},
			Outputs: []string{"IMAGE"},
		},
		"SaveImage": {
			Name:    "SaveImage",
			Inputs:  []graph.InputSpec{{Name: "images", Type: "IMAGE"}},
			Widgets: []graph.WidgetSpec{{Name: "filename_prefix", Type: graph.TypeString, Default: "ComfyUI"}},
		},
	}
}

// Registry is a fake installed-capability registry.
type Registry struct {
	Types       map[string]bool
	ModelsByDir map[string][]string
}

// NewRegistry returns a registry with every Catalog type and its checkpoint options installed.
func NewRegistry() *Registry {
	r := &Registry{Types: make(map[string]bool), ModelsByDir: map[string][]string{
		"checkpoints": {"sd_xl_base_1.0.safetensors", "v1-5-pruned-emaonly.safetensors"},
	}}
	for name := range Catalog() {
		r.Types[name] = true
	}
	return r
}

// HasNodeType implements graph.Registry.
func (r *Registry) HasNodeType(t string) bool { return r.Types[t] }

// HasModel implements graph.Registry.
func (r *Registry) HasModel(folder, name string) bool {
	for _, m := range r.ModelsByDir[folder] {
		if m == name {
			return true
		}
	}
	return false
}

// Models implements graph.Registry.
func (r *Registry) Models(folder string) []string { return r.ModelsByDir[folder] }

// Environment is an in-memory installed-capability registry with a
// controllable scan error. It satisfies the tools package's Environment.
type Environment struct {
	graph.StaticCatalog
	*Registry

	// ScanErr, when set, fails every EnsureFresh and Refresh.
	ScanErr error
	Scans   atomic.Int32
}

// NewEnvironment returns an Environment over Catalog and NewRegistry.
func NewEnvironment() *Environment {
	return &Environment{StaticCatalog: Catalog(), Registry: NewRegistry()}
}

// EnsureFresh counts the scan and returns ScanErr.
func (e *Environment) EnsureFresh(ctx context.Context) error {
	e.Scans.Add(1)
	return e.ScanErr
}

// Refresh behaves like EnsureFresh.
func (e *Environment) Refresh(ctx context.Context) error {
	return e.EnsureFresh(ctx)
}

// Search matches node type names containing query.
func (e *Environment) Search(query string, limit int) []graph.NodeDef {
	var out []graph.NodeDef
	for _, name := range graph.Suggest(e.StaticCatalog, query, limit) {
		out = append(out, e.StaticCatalog[name])
	}
	return out
}

// ModelFolders lists folders with at least one model.
func (e *Environment) ModelFolders() []string {
	var out []string
	for folder, files := range e.ModelsByDir {
		if len(files) > 0 {
			out = append(out, folder)
		}
	}
	sort.Strings(out)
	return out
}
