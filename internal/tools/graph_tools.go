package tools

import (
	"context"

	"google.golang.org/genai"

	"comfypilot/internal/graph"
)

// GraphTools returns the local tools that edit the in-memory workflow.
func GraphTools(w *graph.Workflow) []Definition {
	g := &graphTools{w: w}
	return []Definition{
		{
			Name:        "addNode",
			Description: "Add a node of an installed type to the workflow. Widgets not given keep the node type's defaults. Returns the new node with its id and widget names.",
			Parameters: object(map[string]*genai.Schema{
				"nodeType": stringProp("Exact installed node class name, e.g. KSampler"),
				"title":    stringProp("Optional display title"),
				"widgets": {
					Type:        genai.TypeObject,
					Description: "Optional initial widget values keyed by widget name",
				},
			}, "nodeType"),
			Execute: Bind(g.addNode),
		},
		{
			Name:        "removeNode",
			Description: "Remove a node and every link attached to it.",
			Parameters: object(map[string]*genai.Schema{
				"nodeId": intProp("Id of the node to remove", ptr(1.0)),
			}, "nodeId"),
			Execute: Bind(g.removeNode),
		},
		{
			Name:        "connectNodes",
			Description: "Connect an output slot of one node to a named input of another. Output and input types must match.",
			Parameters: object(map[string]*genai.Schema{
				"fromNodeId": intProp("Source node id", ptr(1.0)),
				"fromSlot":   intProp("Output slot index on the source node (0-based)", ptr(0.0)),
				"toNodeId":   intProp("Target node id", ptr(1.0)),
				"inputName":  stringProp("Input name on the target node"),
			}, "fromNodeId", "fromSlot", "toNodeId", "inputName"),
			Execute: Bind(g.connectNodes),
		},
		{
			Name:        "getNode",
			Description: "Inspect one node: type, widgets with current values, inputs and links, outputs.",
			Parameters: object(map[string]*genai.Schema{
				"nodeId": intProp("Node id", ptr(1.0)),
			}, "nodeId"),
			Execute: Bind(g.getNode),
		},
		{
			Name:        "setNodeWidgetValue",
			Description: "Set one widget value on a node. The value is checked against the widget's type, range and options.",
			Parameters: object(map[string]*genai.Schema{
				"nodeId":     intProp("Node id", ptr(1.0)),
				"widgetName": stringProp("Widget name exactly as reported by getNode or addNode"),
				"value": {
					Description: "New value",
					AnyOf: []*genai.Schema{
						{Type: genai.TypeString},
						{Type: genai.TypeNumber},
						{Type: genai.TypeBoolean},
					},
				},
			}, "nodeId", "widgetName", "value"),
			Execute: Bind(g.setWidget),
		},
		{
			Name:        "getWorkflow",
			Description: "Return the current workflow in ComfyUI API format together with a node list.",
			Parameters:  object(nil),
			Execute:     Bind(g.getWorkflow),
		},
		{
			Name:        "clearWorkflow",
			Description: "Remove every node from the workflow.",
			Parameters:  object(nil),
			Execute:     Bind(g.clearWorkflow),
		},
	}
}

type graphTools struct {
	w *graph.Workflow
}

type addNodeParams struct {
	NodeType string         `json:"nodeType"`
	Title    string         `json:"title"`
	Widgets  map[string]any `json:"widgets"`
}

func (g *graphTools) addNode(_ context.Context, p addNodeParams) Result {
	n, err := g.w.AddNode(p.NodeType, p.Title, p.Widgets)
	if err != nil {
		return NewErrorResult(err.Error())
	}
	return NewSuccessResult(map[string]any{"node": n})
}

type nodeIDParams struct {
	NodeID int `json:"nodeId"`
}

func (g *graphTools) removeNode(_ context.Context, p nodeIDParams) Result {
	if err := g.w.RemoveNode(p.NodeID); err != nil {
		return NewErrorResult(err.Error())
	}
	return NewSuccessResult(map[string]any{"removed": p.NodeID, "remaining": g.w.Len()})
}

type connectParams struct {
	FromNodeID int    `json:"fromNodeId"`
	FromSlot   int    `json:"fromSlot"`
	ToNodeID   int    `json:"toNodeId"`
	InputName  string `json:"inputName"`
}

func (g *graphTools) connectNodes(_ context.Context, p connectParams) Result {
	if err := g.w.Connect(p.FromNodeID, p.FromSlot, p.ToNodeID, p.InputName); err != nil {
		return NewErrorResult(err.Error())
	}
	return NewSuccessResult(map[string]any{
		"from":  map[string]int{"node": p.FromNodeID, "slot": p.FromSlot},
		"to":    p.ToNodeID,
		"input": p.InputName,
	})
}

func (g *graphTools) getNode(_ context.Context, p nodeIDParams) Result {
	n, ok := g.w.Node(p.NodeID)
	if !ok {
		return Errorf("node %d does not exist; the workflow has %d nodes", p.NodeID, g.w.Len())
	}
	return NewSuccessResult(map[string]any{"node": n})
}

type setWidgetParams struct {
	NodeID     int    `json:"nodeId"`
	WidgetName string `json:"widgetName"`
	Value      any    `json:"value"`
}

func (g *graphTools) setWidget(_ context.Context, p setWidgetParams) Result {
	n, err := g.w.SetWidget(p.NodeID, p.WidgetName, p.Value)
	if err != nil {
		return NewErrorResult(err.Error())
	}
	return NewSuccessResult(map[string]any{"node": n})
}

func (g *graphTools) getWorkflow(_ context.Context, _ struct{}) Result {
	nodes := g.w.Nodes()
	return NewSuccessResult(map[string]any{
		"node_count": len(nodes),
		"prompt":     graph.NodesToAPI(nodes),
	})
}

func (g *graphTools) clearWorkflow(_ context.Context, _ struct{}) Result {
	removed := g.w.Len()
	g.w.Clear()
	return NewSuccessResult(map[string]any{"removed": removed})
}
