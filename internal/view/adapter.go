package view

import "github.com/rendis/flowdesk/internal/diagram"

// NodeView is a diagram node in the canvas widget's shape.
type NodeView struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Selected    bool    `json:"selected"`
	Draggable   bool    `json:"draggable"`
	Connectable bool    `json:"connectable"`
	Style       Style   `json:"style"`
}

// EdgeView is a diagram edge in the canvas widget's shape.
type EdgeView struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	Target    string           `json:"target"`
	Type      diagram.EdgeType `json:"type"`
	Label     string           `json:"label,omitempty"`
	MarkerEnd string           `json:"markerEnd"`
	Animated  bool             `json:"animated"`
	Style     Style            `json:"style"`
}

// Canvas is everything the widget needs to draw one diagram.
type Canvas struct {
	Nodes    []NodeView `json:"nodes"`
	Edges    []EdgeView `json:"edges"`
	Editable bool       `json:"editable"`
	// Handlers is false in read-only mode: no drag, connect or delete gestures.
	Handlers   bool   `json:"handlers"`
	EmptyState string `json:"empty_state,omitempty"`
}

// ToNodeView maps a node. Drag and connect are only offered when editable.
func ToNodeView(n diagram.Node, selected, editable bool) NodeView {
	return NodeView{
		ID:          n.ID,
		Label:       n.Label,
		X:           n.X,
		Y:           n.Y,
		Selected:    selected,
		Draggable:   editable,
		Connectable: editable,
		Style:       NodeStyle(selected),
	}
}

// ToEdgeView maps an edge. Its look depends on the type only.
func ToEdgeView(e diagram.Edge) EdgeView {
	style := EdgeStyle(e.Type)
	return EdgeView{
		ID:        e.ID,
		Source:    e.Source,
		Target:    e.Target,
		Type:      e.Type,
		Label:     EdgeLabel(e),
		MarkerEnd: MarkerArrowClosed,
		Animated:  style.Animated,
		Style:     style,
	}
}

// BuildCanvas maps a whole diagram. A read-only diagram without nodes gets
// an empty-state message instead of an empty canvas.
func BuildCanvas(d diagram.Diagram, selectedID string, editable bool) Canvas {
	c := Canvas{
		Nodes:    make([]NodeView, 0, len(d.Nodes)),
		Edges:    make([]EdgeView, 0, len(d.Edges)),
		Editable: editable,
		Handlers: editable,
	}
	if !editable && len(d.Nodes) == 0 {
		c.EmptyState = EmptyStateMessage
		return c
	}
	for _, n := range d.Nodes {
		c.Nodes = append(c.Nodes, ToNodeView(n, n.ID == selectedID, editable))
	}
	for _, e := range d.Edges {
		c.Edges = append(c.Edges, ToEdgeView(e))
	}
	return c
}
