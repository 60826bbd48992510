package panel

import (
	"math"
	"strconv"

	"github.com/rendis/flowdesk/internal/view"
)

const (
	nodeWidth  = 150.0
	nodeHeight = 44.0
	canvasPad  = 40.0
)

// svgNode is a canvas node laid out for the SVG template.
type svgNode struct {
	view.NodeView
	W, H float64
	// TextX, TextY is the label anchor.
	TextX, TextY float64
}

// svgEdge is a canvas edge as a straight segment between box borders.
type svgEdge struct {
	view.EdgeView
	X1, Y1, X2, Y2 float64
	LabelX, LabelY float64
}

// svgCanvas is the SVG drawing of a view.Canvas.
type svgCanvas struct {
	ViewBox    string
	Width      float64
	Height     float64
	Nodes      []svgNode
	Edges      []svgEdge
	Editable   bool
	EmptyState string
}

// layoutSVG positions every node box at its diagram coordinates and clips
// each edge to the border of its end boxes.
func layoutSVG(c view.Canvas) svgCanvas {
	out := svgCanvas{Editable: c.Editable, EmptyState: c.EmptyState}
	centers := make(map[string][2]float64, len(c.Nodes))

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range c.Nodes {
		out.Nodes = append(out.Nodes, svgNode{
			NodeView: n,
			W:        nodeWidth,
			H:        nodeHeight,
			TextX:    n.X + nodeWidth/2,
			TextY:    n.Y + nodeHeight/2 + 5,
		})
		centers[n.ID] = [2]float64{n.X + nodeWidth/2, n.Y + nodeHeight/2}
		minX, minY = math.Min(minX, n.X), math.Min(minY, n.Y)
		maxX, maxY = math.Max(maxX, n.X+nodeWidth), math.Max(maxY, n.Y+nodeHeight)
	}
	if len(c.Nodes) == 0 {
		minX, minY, maxX, maxY = 0, 0, 600, 200
	}

	for _, e := range c.Edges {
		from, okFrom := centers[e.Source]
		to, okTo := centers[e.Target]
		if !okFrom || !okTo {
			continue
		}
		x1, y1 := clipToBox(from, to)
		x2, y2 := clipToBox(to, from)
		out.Edges = append(out.Edges, svgEdge{
			EdgeView: e,
			X1:       x1,
			Y1:       y1,
			X2:       x2,
			Y2:       y2,
			LabelX:   (x1 + x2) / 2,
			LabelY:   (y1+y2)/2 - 6,
		})
	}

	out.Width = maxX - minX + 2*canvasPad
	out.Height = maxY - minY + 2*canvasPad
	out.ViewBox = formatViewBox(minX-canvasPad, minY-canvasPad, out.Width, out.Height)
	return out
}

// clipToBox returns the point where the segment from center toward other
// leaves the node box around center.
func clipToBox(center, other [2]float64) (float64, float64) {
	dx, dy := other[0]-center[0], other[1]-center[1]
	if dx == 0 && dy == 0 {
		return center[0], center[1]
	}
	hw, hh := nodeWidth/2, nodeHeight/2
	scale := math.Inf(1)
	if dx != 0 {
		scale = math.Min(scale, hw/math.Abs(dx))
	}
	if dy != 0 {
		scale = math.Min(scale, hh/math.Abs(dy))
	}
	return center[0] + dx*scale, center[1] + dy*scale
}

func formatViewBox(x, y, w, h float64) string {
	return trimFloat(x) + " " + trimFloat(y) + " " + trimFloat(w) + " " + trimFloat(h)
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*10)/10, 'f', -1, 64)
}
