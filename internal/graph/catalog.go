package graph

import (
	"sort"
	"strings"
)

// Widget value types as reported by ComfyUI.
const (
	TypeInt     = "INT"
	TypeFloat   = "FLOAT"
	TypeString  = "STRING"
	TypeBoolean = "BOOLEAN"
	TypeCombo   = "COMBO"
)

// WidgetSpec describes one configurable value of a node type.
type WidgetSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Default     any      `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	ModelFolder string   `json:"model_folder,omitempty"` // set when Options are model filenames
	Optional    bool     `json:"optional,omitempty"`
}

// InputSpec describes a linkable input slot.
type InputSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// NodeDef is the definition of an installed node type.
type NodeDef struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name,omitempty"`
	Category    string       `json:"category,omitempty"`
	Inputs      []InputSpec  `json:"inputs,omitempty"`
	Widgets     []WidgetSpec `json:"widgets,omitempty"`
	Outputs     []string     `json:"outputs,omitempty"`
}

// Widget returns the named widget spec.
func (d NodeDef) Widget(name string) (WidgetSpec, bool) {
	for _, w := range d.Widgets {
		if w.Name == name {
			return w, true
		}
	}
	return WidgetSpec{}, false
}

// WidgetNames lists widget names in declaration order.
func (d NodeDef) WidgetNames() []string {
	names := make([]string, len(d.Widgets))
	for i, w := range d.Widgets {
		names[i] = w.Name
	}
	return names
}

// Catalog resolves node type definitions.
type Catalog interface {
	NodeDef(classType string) (NodeDef, bool)
	NodeTypes() []string
}

// StaticCatalog is a fixed in-memory Catalog.
type StaticCatalog map[string]NodeDef

// NodeDef implements Catalog.
func (c StaticCatalog) NodeDef(classType string) (NodeDef, bool) {
	d, ok := c[classType]
	return d, ok
}

// NodeTypes implements Catalog.
func (c StaticCatalog) NodeTypes() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Suggest returns up to limit node types whose name contains query (case-insensitive).
func Suggest(c Catalog, query string, limit int) []string {
	if c == nil {
		return nil
	}
	q := strings.ToLower(query)
	var out []string
	for _, name := range c.NodeTypes() {
		if strings.Contains(strings.ToLower(name), q) || strings.Contains(q, strings.ToLower(name)) {
			out = append(out, name)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// modelFolders maps loader widget names to ComfyUI model folders.
var modelFolders = map[string]string{
	"ckpt_name":         "checkpoints",
	"lora_name":         "loras",
	"vae_name":          "vae",
	"control_net_name":  "controlnet",
	"unet_name":         "diffusion_models",
	"clip_name":         "text_encoders",
	"clip_name1":        "text_encoders",
	"clip_name2":        "text_encoders",
	"clip_vision_name":  "clip_vision",
	"style_model_name":  "style_models",
	"upscale_model":     "upscale_models",
	"gligen_name":       "gligen",
	"hypernetwork_name": "hypernetworks",
	"embedding_name":    "embeddings",
}

// ModelFolderForWidget returns the model folder a widget selects from.
func ModelFolderForWidget(nodeType, widget string) string {
	if folder, ok := modelFolders[widget]; ok {
		return folder
	}
	if nodeType == "UpscaleModelLoader" && widget == "model_name" {
		return "upscale_models"
	}
	return ""
}
