package comfy

import (
	"encoding/json"
	"sort"

	"comfypilot/internal/graph"
)

// RawNodeInfo is one entry of GET /object_info.
type RawNodeInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Input       struct {
		Required map[string]json.RawMessage `json:"required"`
		Optional map[string]json.RawMessage `json:"optional"`
	} `json:"input"`
	InputOrder struct {
		Required []string `json:"required"`
		Optional []string `json:"optional"`
	} `json:"input_order"`
	Output     []json.RawMessage `json:"output"`
	OutputName []string          `json:"output_name"`
}

var widgetTypes = map[string]bool{
	graph.TypeInt:     true,
	graph.TypeFloat:   true,
	graph.TypeString:  true,
	graph.TypeBoolean: true,
	graph.TypeCombo:   true,
}

// ParseNodeDef converts an object_info entry into a node definition.
// Entries that cannot be decoded are skipped field by field.
func ParseNodeDef(name string, raw RawNodeInfo) graph.NodeDef {
	def := graph.NodeDef{
		Name:        name,
		DisplayName: raw.DisplayName,
		Category:    raw.Category,
	}

	add := func(inputs map[string]json.RawMessage, order []string, optional bool) {
		for _, in := range orderedNames(inputs, order) {
			parseInput(&def, name, in, inputs[in], optional)
		}
	}
	add(raw.Input.Required, raw.InputOrder.Required, false)
	add(raw.Input.Optional, raw.InputOrder.Optional, true)

	for _, out := range raw.Output {
		var s string
		if json.Unmarshal(out, &s) == nil {
			def.Outputs = append(def.Outputs, s)
			continue
		}
		// Combo outputs are lists of choices.
		def.Outputs = append(def.Outputs, graph.TypeCombo)
	}
	return def
}

func orderedNames(inputs map[string]json.RawMessage, order []string) []string {
	seen := make(map[string]bool, len(inputs))
	var names []string
	for _, n := range order {
		if _, ok := inputs[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range inputs {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// parseInput handles the two encodings ComfyUI uses:
//
//	["INT", {"default": 20, "min": 1}]      typed input
//	[["euler", "dpmpp_2m"], {}]             legacy combo
//	["COMBO", {"options": ["a", "b"]}]     current combo
func parseInput(def *graph.NodeDef, nodeType, name string, raw json.RawMessage, optional bool) {
	var spec []json.RawMessage
	if err := json.Unmarshal(raw, &spec); err != nil || len(spec) == 0 {
		return
	}

	var opts struct {
		Default any      `json:"default"`
		Min     *float64 `json:"min"`
		Max     *float64 `json:"max"`
		Options []string `json:"options"`
	}
	if len(spec) > 1 {
		_ = json.Unmarshal(spec[1], &opts)
	}

	var choices []string
	if json.Unmarshal(spec[0], &choices) == nil {
		def.Widgets = append(def.Widgets, graph.WidgetSpec{
			Name:        name,
			Type:        graph.TypeCombo,
			Default:     opts.Default,
			Options:     choices,
			ModelFolder: graph.ModelFolderForWidget(nodeType, name),
			Optional:    optional,
		})
		return
	}

	var typ string
	if json.Unmarshal(spec[0], &typ) != nil {
		return
	}
	if !widgetTypes[typ] {
		def.Inputs = append(def.Inputs, graph.InputSpec{Name: name, Type: typ, Optional: optional})
		return
	}

	ws := graph.WidgetSpec{
		Name:     name,
		Type:     typ,
		Default:  opts.Default,
		Min:      opts.Min,
		Max:      opts.Max,
		Optional: optional,
	}
	if typ == graph.TypeCombo {
		ws.Options = opts.Options
		ws.ModelFolder = graph.ModelFolderForWidget(nodeType, name)
	}
	if typ == graph.TypeInt {
		if f, ok := ws.Default.(float64); ok {
			ws.Default = int64(f)
		}
	}
	def.Widgets = append(def.Widgets, ws)
}
