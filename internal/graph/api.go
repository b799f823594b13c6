package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// APINode is one entry of a ComfyUI API-format prompt.
type APINode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *APIMeta       `json:"_meta,omitempty"`
}

// APIMeta carries optional node metadata.
type APIMeta struct {
	Title string `json:"title,omitempty"`
}

// APIPrompt is a workflow in ComfyUI API format keyed by node ID.
type APIPrompt map[string]APINode

// ToAPI exports the workflow in API format.
func (w *Workflow) ToAPI() APIPrompt {
	return NodesToAPI(w.Nodes())
}

// NodesToAPI converts nodes to API format.
func NodesToAPI(nodes []Node) APIPrompt {
	prompt := make(APIPrompt, len(nodes))
	for _, n := range nodes {
		inputs := make(map[string]any, len(n.Widgets)+len(n.Inputs))
		for _, wd := range n.Widgets {
			inputs[wd.Name] = wd.Value
		}
		for _, in := range n.Inputs {
			if in.Link != nil {
				inputs[in.Name] = []any{strconv.Itoa(in.Link.FromNode), in.Link.FromSlot}
			}
		}
		entry := APINode{ClassType: n.Type, Inputs: inputs}
		if n.Title != "" {
			entry.Meta = &APIMeta{Title: n.Title}
		}
		prompt[strconv.Itoa(n.ID)] = entry
	}
	return prompt
}

// ParseAPI decodes raw JSON (an object, or a string holding one) into a prompt.
func ParseAPI(raw any) (APIPrompt, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("failed to encode workflow: %w", err)
		}
	}

	var prompt APIPrompt
	if err := json.Unmarshal(data, &prompt); err != nil {
		return nil, fmt.Errorf("workflow is not valid API-format JSON: %w", err)
	}
	if len(prompt) == 0 {
		return nil, fmt.Errorf("workflow has no nodes")
	}
	return prompt, nil
}

// NodesFromAPI builds nodes from an API-format prompt. Node types missing
// from the catalog are kept so validation can report them.
func NodesFromAPI(prompt APIPrompt, catalog Catalog) ([]Node, error) {
	ids := make([]string, 0, len(prompt))
	for id := range prompt {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]Node, 0, len(prompt))
	for _, key := range ids {
		entry := prompt[key]
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("node id %q is not numeric", key)
		}
		if entry.ClassType == "" {
			return nil, fmt.Errorf("node %s: class_type is required", key)
		}

		n := Node{ID: id, Type: entry.ClassType}
		if entry.Meta != nil {
			n.Title = entry.Meta.Title
		}

		var def NodeDef
		var known bool
		if catalog != nil {
			def, known = catalog.NodeDef(entry.ClassType)
		}
		if known {
			n.Outputs = append([]string(nil), def.Outputs...)
			for _, in := range def.Inputs {
				n.Inputs = append(n.Inputs, Input{Name: in.Name, Type: in.Type})
			}
		}

		names := make([]string, 0, len(entry.Inputs))
		for name := range entry.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		if known {
			names = orderByDef(names, def)
		}

		for _, name := range names {
			v := entry.Inputs[name]
			if link, ok := asLink(v); ok {
				setOrAppendInput(&n, name, link)
				continue
			}
			n.Widgets = append(n.Widgets, Widget{Name: name, Value: v})
		}
		nodes = append(nodes, n)
	}

	// Links must point at nodes in the prompt.
	byID := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = true
	}
	for _, n := range nodes {
		for _, in := range n.Inputs {
			if in.Link != nil && !byID[in.Link.FromNode] {
				return nil, fmt.Errorf("node %d input %q links to missing node %d", n.ID, in.Name, in.Link.FromNode)
			}
		}
	}
	return nodes, nil
}

func orderByDef(names []string, def NodeDef) []string {
	rank := make(map[string]int, len(def.Widgets))
	for i, w := range def.Widgets {
		rank[w.Name] = i
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
	return names
}

func setOrAppendInput(n *Node, name string, link Link) {
	for i := range n.Inputs {
		if n.Inputs[i].Name == name {
			n.Inputs[i].Link = &link
			return
		}
	}
	n.Inputs = append(n.Inputs, Input{Name: name, Type: "*", Link: &link})
}

// asLink recognizes the ["<node id>", <slot>] link encoding.
func asLink(v any) (Link, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return Link{}, false
	}
	idStr, ok := arr[0].(string)
	if !ok {
		return Link{}, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return Link{}, false
	}
	slot, ok := toFloat(arr[1])
	if !ok {
		return Link{}, false
	}
	return Link{FromNode: id, FromSlot: int(slot)}, true
}
