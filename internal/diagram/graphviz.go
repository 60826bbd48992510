package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a RenderModel as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(ctx context.Context, model *RenderModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		applyEdgeStyle(e, edge.Type)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle mirrors the canvas look: selected steps are highlighted,
// steps without a record are dashed.
func applyNodeStyle(gvNode *cgraph.Node, node *RenderNode) {
	gvNode.SetShape(cgraph.BoxShape)
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch {
	case node.Selected:
		gvNode.SetFillColor("#dbeafe")
		gvNode.SetColor("#3b82f6")
	case node.Unrecorded:
		gvNode.SetFillColor("#ffffff")
		gvNode.SetColor("#d6d3d1")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	default:
		gvNode.SetFillColor("#ffffff")
		gvNode.SetColor("#d6d3d1")
	}
}

func applyEdgeStyle(e *cgraph.Edge, t EdgeType) {
	switch t {
	case EdgeConditional:
		e.SetColor("#d97706")
		e.SetStyle(cgraph.DashedEdgeStyle)
	case EdgeParallel:
		e.SetColor("#2563eb")
		e.SetStyle(cgraph.BoldEdgeStyle)
	default:
		e.SetColor("#57534e")
	}
}
