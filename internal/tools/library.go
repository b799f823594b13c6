package tools

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/genai"

	"comfypilot/internal/memory"
	"comfypilot/internal/skills"
	"comfypilot/internal/templates"
)

// UserSkillStore persists the user's own reusable procedures. memory.Store implements it.
type UserSkillStore interface {
	Skills(ctx context.Context) ([]memory.Skill, error)
	Skill(ctx context.Context, id string) (memory.Skill, error)
	SaveSkill(ctx context.Context, sk memory.Skill) (memory.Skill, error)
}

// ModelSkillLibrary serves model-specific technical skills. skills.Library implements it.
type ModelSkillLibrary interface {
	List() []skills.Skill
	Get(ref string) (skills.Skill, error)
}

// TemplateLibrary serves curated workflows. templates.Library implements it.
type TemplateLibrary interface {
	Search(query string, limit int) []templates.Template
	Get(id string) (templates.Template, error)
}

// UserSkillTools returns listSkills, getSkill and saveSkill.
func UserSkillTools(store UserSkillStore) []Definition {
	st := &skillTools{store: store}
	return []Definition{
		{
			Name:        "listSkills",
			Description: "List the user's saved skills (reusable procedures) with id, name and description. Check this first: a matching skill must be followed.",
			Parameters:  object(nil),
			Kind:        KindRemote,
			Execute:     Bind(st.list),
		},
		{
			Name:        "getSkill",
			Description: "Load the full instructions of one user skill by id.",
			Parameters: object(map[string]*genai.Schema{
				"id": stringProp("Skill id from listSkills"),
			}, "id"),
			Kind:    KindRemote,
			Execute: Bind(st.get),
		},
		{
			Name:        "saveSkill",
			Description: "Save a reusable procedure when the user asks to remember how to do something. Saving under an existing name replaces it.",
			Parameters: object(map[string]*genai.Schema{
				"name":        stringProp("Short name"),
				"description": stringProp("One sentence on when to use it"),
				"body":        stringProp("Step-by-step instructions"),
				"tags": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
			}, "name", "body"),
			Kind:    KindRemote,
			Serial:  true,
			Execute: Bind(st.save),
		},
	}
}

type skillTools struct {
	store UserSkillStore
}

func (st *skillTools) list(ctx context.Context, _ struct{}) Result {
	list, err := st.store.Skills(ctx)
	if err != nil {
		return Errorf("failed to list skills: %s", err)
	}
	if list == nil {
		list = []memory.Skill{}
	}
	return NewSuccessResult(map[string]any{"skills": list, "count": len(list)})
}

type skillIDParams struct {
	ID string `json:"id"`
}

func (st *skillTools) get(ctx context.Context, p skillIDParams) Result {
	sk, err := st.store.Skill(ctx, p.ID)
	if errors.Is(err, memory.ErrNotFound) {
		return Errorf("no skill with id %q; call listSkills for the available ids", p.ID)
	}
	if err != nil {
		return Errorf("failed to load skill: %s", err)
	}
	return NewSuccessResult(map[string]any{"skill": sk})
}

type saveSkillParams struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
}

func (st *skillTools) save(ctx context.Context, p saveSkillParams) Result {
	sk, err := st.store.SaveSkill(ctx, memory.Skill{
		Name:        p.Name,
		Description: p.Description,
		Body:        p.Body,
		Tags:        p.Tags,
	})
	if err != nil {
		return NewErrorResult(err.Error())
	}
	return NewSuccessResult(map[string]any{"saved": sk.Summary()})
}

// ModelSkillTools returns listModelSkills and getModelSkill.
func ModelSkillTools(lib ModelSkillLibrary) []Definition {
	return []Definition{
		{
			Name:        "listModelSkills",
			Description: "List technical guides for specific model families (recommended samplers, resolutions, prompt style).",
			Parameters:  object(nil),
			Execute: Bind(func(_ context.Context, _ struct{}) Result {
				list := lib.List()
				return NewSuccessResult(map[string]any{"skills": list, "count": len(list)})
			}),
		},
		{
			Name:        "getModelSkill",
			Description: "Load one model guide by id, or by a model filename it covers.",
			Parameters: object(map[string]*genai.Schema{
				"id": stringProp("Guide id, or a model filename such as sd_xl_base_1.0.safetensors"),
			}, "id"),
			Execute: Bind(func(_ context.Context, p skillIDParams) Result {
				sk, err := lib.Get(p.ID)
				if err != nil {
					return Errorf("%s; call listModelSkills for the available guides", err)
				}
				return NewSuccessResult(map[string]any{"skill": sk})
			}),
		},
	}
}

// TemplateTools returns searchTemplates and getTemplate.
func TemplateTools(lib TemplateLibrary) []Definition {
	return []Definition{
		{
			Name:        "searchTemplates",
			Description: "Search the curated library of known-good workflows.",
			Parameters: object(map[string]*genai.Schema{
				"query": stringProp("What the workflow should do, e.g. 'sdxl txt2img' or 'upscale'"),
				"limit": intProp("Maximum number of results (default 5)", ptr(1.0)),
			}, "query"),
			Execute: Bind(func(_ context.Context, p searchNodesParams) Result {
				limit := p.Limit
				if limit <= 0 {
					limit = 5
				}
				hits := lib.Search(p.Query, limit)
				if hits == nil {
					hits = []templates.Template{}
				}
				return NewSuccessResult(map[string]any{"templates": hits, "count": len(hits)})
			}),
		},
		{
			Name:        "getTemplate",
			Description: "Load a template workflow in API format. It must still pass validateWorkflow before applyWorkflow.",
			Parameters: object(map[string]*genai.Schema{
				"id": stringProp("Template id from searchTemplates"),
			}, "id"),
			Execute: Bind(func(_ context.Context, p skillIDParams) Result {
				tpl, err := lib.Get(p.ID)
				if err != nil {
					return Errorf("%s; call searchTemplates for the available ids", err)
				}
				raw, err := json.Marshal(tpl.Workflow)
				if err != nil {
					return Errorf("failed to encode template: %s", err)
				}
				return NewSuccessResult(map[string]any{
					"template":      tpl.Summary(),
					"workflow_json": string(raw),
				})
			}),
		},
	}
}
