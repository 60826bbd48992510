// Package view maps diagrams onto the canvas widget's node and edge
// representation and maps canvas gestures back onto diagrams.
package view

import "github.com/rendis/flowdesk/internal/diagram"

// Style is the visual treatment of a canvas element.
type Style struct {
	Background      string `json:"background,omitempty"`
	Border          string `json:"border,omitempty"`
	FontWeight      int    `json:"fontWeight,omitempty"`
	Stroke          string `json:"stroke,omitempty"`
	StrokeDasharray string `json:"strokeDasharray,omitempty"`
	Animated        bool   `json:"animated,omitempty"`
}

const (
	// MarkerArrowClosed is the arrowhead drawn at every edge target.
	MarkerArrowClosed = "arrowclosed"

	// EmptyStateMessage replaces the canvas when a read-only diagram has no nodes.
	EmptyStateMessage = "No flow diagram yet"
)

// NodeStyle returns the style for a node box.
func NodeStyle(selected bool) Style {
	if selected {
		return Style{Background: "#dbeafe", Border: "2px solid #3b82f6", FontWeight: 600}
	}
	return Style{Background: "#fff", Border: "1px solid #d6d3d1", FontWeight: 400}
}

// EdgeStyle returns the stroke for an edge type. Types unknown to this
// client are drawn like sequential edges.
func EdgeStyle(t diagram.EdgeType) Style {
	switch t {
	case diagram.EdgeConditional:
		return Style{Stroke: "#d97706", StrokeDasharray: "5 3"}
	case diagram.EdgeParallel:
		return Style{Stroke: "#2563eb", Animated: true}
	case diagram.EdgeSequential:
		return Style{Stroke: "#57534e"}
	}
	return Style{Stroke: "#57534e"}
}

// EdgeLabel is the caption drawn on an edge: its own label, otherwise the
// type name for non-sequential edges.
func EdgeLabel(e diagram.Edge) string {
	if e.Label != "" {
		return e.Label
	}
	if e.Type != diagram.EdgeSequential {
		return string(e.Type)
	}
	return ""
}
