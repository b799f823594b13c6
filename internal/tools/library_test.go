package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfypilot/internal/graph"
	"comfypilot/internal/memory"
	"comfypilot/internal/skills"
	"comfypilot/internal/templates"
)

type fakeModelSkills []skills.Skill

func (f fakeModelSkills) List() []skills.Skill {
	out := make([]skills.Skill, len(f))
	for i, s := range f {
		out[i] = s.Summary()
	}
	return out
}

func (f fakeModelSkills) Get(ref string) (skills.Skill, error) {
	for _, s := range f {
		if s.ID == ref || s.AppliesTo(ref) {
			return s, nil
		}
	}
	return skills.Skill{}, fmt.Errorf("%w: %s", skills.ErrNotFound, ref)
}

type fakeTemplates map[string]templates.Template

func (f fakeTemplates) Search(query string, limit int) []templates.Template {
	var out []templates.Template
	for _, t := range f {
		for _, tag := range t.Tags {
			if tag == query && len(out) < limit {
				out = append(out, t.Summary())
			}
		}
	}
	return out
}

func (f fakeTemplates) Get(id string) (templates.Template, error) {
	t, ok := f[id]
	if !ok {
		return templates.Template{}, fmt.Errorf("%w: %s", templates.ErrNotFound, id)
	}
	return t, nil
}

func TestUserSkillTools(t *testing.T) {
	store, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(UserSkillTools(store)...)

	res := r.Dispatch(ctx, "listSkills", nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 0, res.Data.(map[string]any)["count"])

	res = r.Dispatch(ctx, "saveSkill", map[string]any{
		"name":        "Portrait Upscale",
		"description": "2x upscale for portraits",
		"body":        "1. Add UpscaleModelLoader\n2. Use 4x-UltraSharp",
		"tags":        []any{"upscale"},
	})
	require.True(t, res.Success, res.Error)
	saved := res.Data.(map[string]any)["saved"].(memory.Skill)
	assert.Equal(t, "portrait-upscale", saved.ID)
	assert.Empty(t, saved.Body)

	res = r.Dispatch(ctx, "getSkill", map[string]any{"id": "portrait-upscale"})
	require.True(t, res.Success, res.Error)
	sk := res.Data.(map[string]any)["skill"].(memory.Skill)
	assert.Contains(t, sk.Body, "4x-UltraSharp")
	assert.Equal(t, []string{"upscale"}, sk.Tags)

	res = r.Dispatch(ctx, "getSkill", map[string]any{"id": "inpaint"})
	assert.False(t, res.Success)
	assert.Equal(t, `no skill with id "inpaint"; call listSkills for the available ids`, res.Error)

	res = r.Dispatch(ctx, "saveSkill", map[string]any{"name": "!!!", "body": "x"})
	assert.False(t, res.Success)

	res = r.Dispatch(ctx, "listSkills", nil)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.(map[string]any)["count"])
}

func TestModelSkillTools(t *testing.T) {
	lib := fakeModelSkills{{
		ID:     "sdxl",
		Name:   "SDXL",
		Models: []string{"sd_xl_*"},
		Body:   "Use 1024x1024 and cfg 5-7.",
	}}
	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(ModelSkillTools(lib)...)
	ctx := context.Background()

	res := r.Dispatch(ctx, "listModelSkills", nil)
	require.True(t, res.Success)
	list := res.Data.(map[string]any)["skills"].([]skills.Skill)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Body)

	res = r.Dispatch(ctx, "getModelSkill", map[string]any{"id": "sd_xl_base_1.0.safetensors"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "sdxl", res.Data.(map[string]any)["skill"].(skills.Skill).ID)

	res = r.Dispatch(ctx, "getModelSkill", map[string]any{"id": "flux"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "call listModelSkills")
}

func TestTemplateTools(t *testing.T) {
	prompt, err := graph.ParseAPI(txt2img("sd_xl_base_1.0.safetensors", "KSampler"))
	require.NoError(t, err)
	lib := fakeTemplates{"sdxl/txt2img": {
		ID:       "sdxl/txt2img",
		Meta:     templates.Meta{Name: "SDXL text to image", Tags: []string{"txt2img"}},
		Workflow: prompt,
	}}
	r := NewRegistry(5*time.Second, 30*time.Second)
	r.MustRegister(TemplateTools(lib)...)
	ctx := context.Background()

	res := r.Dispatch(ctx, "searchTemplates", map[string]any{"query": "txt2img"})
	require.True(t, res.Success)
	hits := res.Data.(map[string]any)["templates"].([]templates.Template)
	require.Len(t, hits, 1)
	assert.Nil(t, hits[0].Workflow)

	res = r.Dispatch(ctx, "searchTemplates", map[string]any{"query": "video"})
	require.True(t, res.Success)
	assert.Equal(t, 0, res.Data.(map[string]any)["count"])

	res = r.Dispatch(ctx, "getTemplate", map[string]any{"id": "sdxl/txt2img"})
	require.True(t, res.Success, res.Error)
	raw := res.Data.(map[string]any)["workflow_json"].(string)
	var decoded graph.APIPrompt
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Len(t, decoded, 7)

	res = r.Dispatch(ctx, "getTemplate", map[string]any{"id": "missing"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "call searchTemplates")
}
