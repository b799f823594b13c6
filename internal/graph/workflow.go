package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrUnknownWidget   = errors.New("unknown widget")
	ErrUnknownInput    = errors.New("unknown input")
	ErrInvalidValue    = errors.New("invalid widget value")
	ErrTypeMismatch    = errors.New("type mismatch")
)

// Link is a connection feeding an input slot.
type Link struct {
	FromNode int `json:"from_node"`
	FromSlot int `json:"from_slot"`
}

// Input is a linkable slot on a node.
type Input struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Link *Link  `json:"link,omitempty"`
}

// Widget is a named value on a node.
type Widget struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Node is one node in the workflow.
type Node struct {
	ID      int      `json:"id"`
	Type    string   `json:"type"`
	Title   string   `json:"title,omitempty"`
	Inputs  []Input  `json:"inputs,omitempty"`
	Widgets []Widget `json:"widgets,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

// WidgetNames lists the node's widget names in order.
func (n Node) WidgetNames() []string {
	names := make([]string, len(n.Widgets))
	for i, w := range n.Widgets {
		names[i] = w.Name
	}
	return names
}

func (n Node) clone() Node {
	out := n
	out.Inputs = make([]Input, len(n.Inputs))
	for i, in := range n.Inputs {
		out.Inputs[i] = in
		if in.Link != nil {
			l := *in.Link
			out.Inputs[i].Link = &l
		}
	}
	out.Widgets = append([]Widget(nil), n.Widgets...)
	out.Outputs = append([]string(nil), n.Outputs...)
	return out
}

// Workflow is the in-memory graph edited by the assistant. It is safe for
// concurrent use; each mutation completes under the lock before the next.
type Workflow struct {
	catalog Catalog
	nodes   map[int]*Node
	nextID  int
	mu      sync.RWMutex
}

// NewWorkflow creates an empty workflow resolving node types through catalog.
func NewWorkflow(catalog Catalog) *Workflow {
	return &Workflow{
		catalog: catalog,
		nodes:   make(map[int]*Node),
		nextID:  1,
	}
}

// SetCatalog swaps the node catalog (after an environment refresh).
func (w *Workflow) SetCatalog(c Catalog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.catalog = c
}

// Catalog returns the current catalog.
func (w *Workflow) Catalog() Catalog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.catalog
}

// AddNode adds a node of classType populated with the type's default widgets,
// then applies the given widget values.
func (w *Workflow) AddNode(classType, title string, values map[string]any) (Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.catalog == nil {
		return Node{}, fmt.Errorf("%w: %s (no node catalog loaded)", ErrUnknownNodeType, classType)
	}
	def, ok := w.catalog.NodeDef(classType)
	if !ok {
		msg := fmt.Sprintf("%s is not installed", classType)
		if similar := Suggest(w.catalog, classType, 5); len(similar) > 0 {
			msg += "; similar installed types: " + strings.Join(similar, ", ")
		}
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownNodeType, msg)
	}

	node := &Node{
		ID:      w.nextID,
		Type:    classType,
		Title:   title,
		Outputs: append([]string(nil), def.Outputs...),
	}
	for _, in := range def.Inputs {
		node.Inputs = append(node.Inputs, Input{Name: in.Name, Type: in.Type})
	}
	for _, ws := range def.Widgets {
		node.Widgets = append(node.Widgets, Widget{Name: ws.Name, Value: defaultValue(ws)})
	}

	// Validate all values before committing the node.
	for name, v := range values {
		ws, ok := def.Widget(name)
		if !ok {
			return Node{}, unknownWidgetError(node.ID, classType, name, node.WidgetNames())
		}
		coerced, err := coerceValue(ws, v)
		if err != nil {
			return Node{}, err
		}
		setWidget(node, name, coerced)
	}

	w.nodes[node.ID] = node
	w.nextID++
	return node.clone(), nil
}

// RemoveNode deletes a node and every link that refers to it.
func (w *Workflow) RemoveNode(id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	delete(w.nodes, id)
	for _, n := range w.nodes {
		for i := range n.Inputs {
			if n.Inputs[i].Link != nil && n.Inputs[i].Link.FromNode == id {
				n.Inputs[i].Link = nil
			}
		}
	}
	return nil
}

// Connect links output fromSlot of fromID to the named input of toID.
func (w *Workflow) Connect(fromID, fromSlot, toID int, inputName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	from, ok := w.nodes[fromID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, fromID)
	}
	to, ok := w.nodes[toID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, toID)
	}
	if fromSlot < 0 || fromSlot >= len(from.Outputs) {
		return fmt.Errorf("%w: node %d (%s) has %d outputs, slot %d requested", ErrUnknownInput, fromID, from.Type, len(from.Outputs), fromSlot)
	}

	for i := range to.Inputs {
		in := &to.Inputs[i]
		if in.Name != inputName {
			continue
		}
		outType := from.Outputs[fromSlot]
		if in.Type != "*" && outType != "*" && in.Type != outType {
			return fmt.Errorf("%w: output %d of %s is %s but input %q of %s expects %s",
				ErrTypeMismatch, fromSlot, from.Type, outType, inputName, to.Type, in.Type)
		}
		in.Link = &Link{FromNode: fromID, FromSlot: fromSlot}
		return nil
	}

	names := make([]string, len(to.Inputs))
	for i, in := range to.Inputs {
		names[i] = in.Name
	}
	return fmt.Errorf("%w: %q on node %d (%s); available inputs: %s",
		ErrUnknownInput, inputName, toID, to.Type, strings.Join(names, ", "))
}

// SetWidget sets a widget value after checking it against the node type.
func (w *Workflow) SetWidget(id int, name string, value any) (Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	node, ok := w.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	idx := -1
	for i, wd := range node.Widgets {
		if wd.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Node{}, unknownWidgetError(id, node.Type, name, node.WidgetNames())
	}

	coerced := value
	if w.catalog != nil {
		if def, ok := w.catalog.NodeDef(node.Type); ok {
			if ws, ok := def.Widget(name); ok {
				var err error
				if coerced, err = coerceValue(ws, value); err != nil {
					return Node{}, err
				}
			}
		}
	}
	node.Widgets[idx].Value = coerced
	return node.clone(), nil
}

// Node returns a copy of the node with the given ID.
func (w *Workflow) Node(id int) (Node, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n, ok := w.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Nodes returns copies of all nodes ordered by ID.
func (w *Workflow) Nodes() []Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sortedLocked()
}

func (w *Workflow) sortedLocked() []Node {
	out := make([]Node, 0, len(w.nodes))
	for _, n := range w.nodes {
		out = append(out, n.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of nodes.
func (w *Workflow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.nodes)
}

// Clear removes every node.
func (w *Workflow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nodes = make(map[int]*Node)
	w.nextID = 1
}

// Replace swaps the graph contents for nodes.
func (w *Workflow) Replace(nodes []Node) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nodes = make(map[int]*Node, len(nodes))
	w.nextID = 1
	for _, n := range nodes {
		cp := n.clone()
		w.nodes[n.ID] = &cp
		if n.ID >= w.nextID {
			w.nextID = n.ID + 1
		}
	}
}

func setWidget(n *Node, name string, v any) {
	for i := range n.Widgets {
		if n.Widgets[i].Name == name {
			n.Widgets[i].Value = v
			return
		}
	}
}

func unknownWidgetError(id int, nodeType, name string, available []string) error {
	list := "none"
	if len(available) > 0 {
		list = strings.Join(available, ", ")
	}
	return fmt.Errorf("%w: %q is not a widget of node %d (%s); available widgets: %s",
		ErrUnknownWidget, name, id, nodeType, list)
}

func defaultValue(ws WidgetSpec) any {
	if ws.Default != nil {
		return ws.Default
	}
	switch ws.Type {
	case TypeInt, TypeFloat:
		if ws.Min != nil {
			return *ws.Min
		}
		return 0
	case TypeBoolean:
		return false
	case TypeCombo:
		if len(ws.Options) > 0 {
			return ws.Options[0]
		}
	}
	return ""
}

// coerceValue checks v against the widget spec, converting JSON numbers
// where the widget expects an integer.
func coerceValue(ws WidgetSpec, v any) (any, error) {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidValue, ws.Name, fmt.Sprintf(format, args...))
	}

	switch ws.Type {
	case TypeInt, TypeFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, bad("expected a number, got %T", v)
		}
		if ws.Type == TypeInt && f != math.Trunc(f) {
			return nil, bad("expected an integer, got %v", f)
		}
		if ws.Min != nil && f < *ws.Min {
			return nil, bad("must be >= %v", *ws.Min)
		}
		if ws.Max != nil && f > *ws.Max {
			return nil, bad("must be <= %v", *ws.Max)
		}
		if ws.Type == TypeInt {
			return int64(f), nil
		}
		return f, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, bad("expected a boolean, got %T", v)
		}
		return b, nil
	case TypeCombo:
		s, ok := v.(string)
		if !ok {
			return nil, bad("expected one of the listed options, got %T", v)
		}
		if len(ws.Options) == 0 {
			return s, nil
		}
		for _, opt := range ws.Options {
			if opt == s {
				return s, nil
			}
		}
		return nil, bad("%q is not available; options: %s", s, strings.Join(limitList(ws.Options, 20), ", "))
	default:
		s, ok := v.(string)
		if !ok {
			return nil, bad("expected a string, got %T", v)
		}
		return s, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func limitList(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	out := append([]string(nil), items[:n]...)
	return append(out, fmt.Sprintf("... (%d more)", len(items)-n))
}
