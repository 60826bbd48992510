package view

import (
	"math"

	"github.com/rendis/flowdesk/internal/diagram"
)

// ChangeKind is the kind of a node change reported by the canvas widget.
type ChangeKind string

const (
	ChangePosition   ChangeKind = "position"
	ChangeSelect     ChangeKind = "select"
	ChangeDimensions ChangeKind = "dimensions"
	ChangeRemove     ChangeKind = "remove"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeChange is one gesture event emitted by the canvas.
type NodeChange struct {
	Kind     ChangeKind `json:"type"`
	ID       string     `json:"id"`
	Position *Position  `json:"position,omitempty"`
	Selected bool       `json:"selected,omitempty"`
}

// ApplyChanges applies drag results to d. Only position changes carrying a
// position mutate the diagram; coordinates are rounded to whole pixels.
// Every other kind is left to the caller for re-rendering. The returned bool
// reports whether any node moved.
func ApplyChanges(d diagram.Diagram, changes []NodeChange) (diagram.Diagram, bool) {
	moves := make(map[string]Position)
	for _, c := range changes {
		if c.Kind != ChangePosition || c.Position == nil {
			continue
		}
		moves[c.ID] = Position{X: math.Round(c.Position.X), Y: math.Round(c.Position.Y)}
	}
	if len(moves) == 0 {
		return d, false
	}

	out := d.Clone()
	changed := false
	for i, n := range out.Nodes {
		p, ok := moves[n.ID]
		if !ok {
			continue
		}
		if n.X != p.X || n.Y != p.Y {
			out.Nodes[i].X, out.Nodes[i].Y = p.X, p.Y
			changed = true
		}
	}
	if !changed {
		return d, false
	}
	return out, true
}
