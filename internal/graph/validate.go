package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Registry answers what is installed on the backend right now.
type Registry interface {
	HasNodeType(classType string) bool
	HasModel(folder, filename string) bool
	Models(folder string) []string
}

// ModelRef is a model filename selected by a node widget.
type ModelRef struct {
	NodeID int    `json:"node_id"`
	Widget string `json:"widget"`
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

// References lists the node types and model files a workflow depends on.
type References struct {
	NodeTypes []string   `json:"node_types"`
	Models    []ModelRef `json:"models"`
}

// Missing is one unresolved reference.
type Missing struct {
	Kind   string `json:"kind"` // "node_type" or "model"
	Name   string `json:"name"`
	Folder string `json:"folder,omitempty"`
	NodeID int    `json:"node_id"`
	Hint   string `json:"hint"`
}

// String renders the user-facing "missing X, install/select Y" message.
func (m Missing) String() string {
	if m.Kind == "model" {
		return fmt.Sprintf("missing model %s in %s (node %d): %s", m.Name, m.Folder, m.NodeID, m.Hint)
	}
	return fmt.Sprintf("missing node type %s (node %d): %s", m.Name, m.NodeID, m.Hint)
}

// Report is the outcome of validating a workflow against a Registry.
type Report struct {
	References References `json:"references"`
	Missing    []Missing  `json:"missing,omitempty"`
}

// OK reports whether every reference resolved.
func (r Report) OK() bool { return len(r.Missing) == 0 }

// Summary joins the missing messages.
func (r Report) Summary() string {
	if r.OK() {
		return "all node types and models are installed"
	}
	lines := make([]string, len(r.Missing))
	for i, m := range r.Missing {
		lines[i] = m.String()
	}
	return strings.Join(lines, "; ")
}

// CollectReferences extracts node types and model filenames from nodes.
func CollectReferences(nodes []Node, catalog Catalog) References {
	seen := make(map[string]bool)
	var refs References
	for _, n := range nodes {
		if !seen[n.Type] {
			seen[n.Type] = true
			refs.NodeTypes = append(refs.NodeTypes, n.Type)
		}

		var def NodeDef
		var known bool
		if catalog != nil {
			def, known = catalog.NodeDef(n.Type)
		}
		for _, wd := range n.Widgets {
			folder := ModelFolderForWidget(n.Type, wd.Name)
			if known {
				if ws, ok := def.Widget(wd.Name); ok && ws.ModelFolder != "" {
					folder = ws.ModelFolder
				}
			}
			name, ok := wd.Value.(string)
			if folder == "" || !ok || name == "" {
				continue
			}
			refs.Models = append(refs.Models, ModelRef{NodeID: n.ID, Widget: wd.Name, Folder: folder, Name: name})
		}
	}
	sort.Strings(refs.NodeTypes)
	return refs
}

// Validate checks every node type and model filename against the live
// registry. Unresolved references are reported, never guessed.
func Validate(nodes []Node, catalog Catalog, reg Registry) Report {
	report := Report{References: CollectReferences(nodes, catalog)}

	firstNode := make(map[string]int)
	for _, n := range nodes {
		if _, ok := firstNode[n.Type]; !ok {
			firstNode[n.Type] = n.ID
		}
	}

	for _, t := range report.References.NodeTypes {
		if reg.HasNodeType(t) {
			continue
		}
		hint := "install the custom node pack that provides it, or pick an installed alternative"
		if similar := Suggest(catalog, t, 3); len(similar) > 0 {
			hint += " (similar: " + strings.Join(similar, ", ") + ")"
		}
		report.Missing = append(report.Missing, Missing{
			Kind:   "node_type",
			Name:   t,
			NodeID: firstNode[t],
			Hint:   hint,
		})
	}

	for _, m := range report.References.Models {
		if reg.HasModel(m.Folder, m.Name) {
			continue
		}
		hint := fmt.Sprintf("download it into models/%s", m.Folder)
		if available := reg.Models(m.Folder); len(available) > 0 {
			hint = "select one of: " + strings.Join(limitList(available, 8), ", ")
		}
		report.Missing = append(report.Missing, Missing{
			Kind:   "model",
			Name:   m.Name,
			Folder: m.Folder,
			NodeID: m.NodeID,
			Hint:   hint,
		})
	}
	return report
}
