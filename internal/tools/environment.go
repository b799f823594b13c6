package tools

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"comfypilot/internal/graph"
)

// Environment is the installed-capability registry of the backend.
// comfy.Inventory implements it.
type Environment interface {
	graph.Catalog
	graph.Registry
	EnsureFresh(ctx context.Context) error
	Refresh(ctx context.Context) error
	Search(query string, limit int) []graph.NodeDef
	ModelFolders() []string
}

// EnvironmentTools returns the tools that inspect installed nodes and models.
func EnvironmentTools(env Environment) []Definition {
	e := &envTools{env: env}
	return []Definition{
		{
			Name:        "searchInstalledNodes",
			Description: "Search installed node types by name, display name or category. Returns definitions with widgets, inputs and outputs.",
			Parameters: object(map[string]*genai.Schema{
				"query": stringProp("Search terms, e.g. 'upscale' or 'lora loader'"),
				"limit": intProp("Maximum number of results (default 10)", ptr(1.0)),
			}, "query"),
			Kind:    KindRemote,
			Execute: Bind(e.searchNodes),
		},
		{
			Name:        "getInstalledModels",
			Description: "List installed model files. Without a folder, lists the model folders that contain files.",
			Parameters: object(map[string]*genai.Schema{
				"folder": stringProp("Model folder, e.g. checkpoints, loras, vae"),
			}),
			Kind:    KindRemote,
			Execute: Bind(e.getModels),
		},
		{
			Name:        "refreshEnvironment",
			Description: "Rescan installed node types and model files after the user installed something.",
			Parameters:  object(nil),
			Kind:        KindRemote,
			Serial:      true,
			Execute:     Bind(e.refresh),
		},
	}
}

type envTools struct {
	env Environment
}

type searchNodesParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (e *envTools) searchNodes(ctx context.Context, p searchNodesParams) Result {
	if err := e.env.EnsureFresh(ctx); err != nil {
		return Errorf("failed to load installed nodes: %s", err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	defs := e.env.Search(p.Query, limit)
	if len(defs) == 0 {
		return NewSuccessResult(map[string]any{
			"nodes": []graph.NodeDef{},
			"note":  fmt.Sprintf("no installed node type matches %q", p.Query),
		})
	}
	return NewSuccessResult(map[string]any{"nodes": defs})
}

type getModelsParams struct {
	Folder string `json:"folder"`
}

func (e *envTools) getModels(ctx context.Context, p getModelsParams) Result {
	if err := e.env.EnsureFresh(ctx); err != nil {
		return Errorf("failed to load installed models: %s", err)
	}
	if p.Folder == "" {
		return NewSuccessResult(map[string]any{"folders": e.env.ModelFolders()})
	}
	models := e.env.Models(p.Folder)
	if len(models) == 0 {
		return Errorf("no models installed in %q; folders with models: %v", p.Folder, e.env.ModelFolders())
	}
	return NewSuccessResult(map[string]any{"folder": p.Folder, "models": models})
}

func (e *envTools) refresh(ctx context.Context, _ struct{}) Result {
	if err := e.env.Refresh(ctx); err != nil {
		if r, ok := timedOut(ctx, "environment scan"); ok {
			return r
		}
		return Errorf("failed to rescan environment: %s", err)
	}
	return NewSuccessResult(map[string]any{
		"node_types":    len(e.env.NodeTypes()),
		"model_folders": e.env.ModelFolders(),
	})
}
