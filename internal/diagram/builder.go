package diagram

import (
	"fmt"

	"github.com/rendis/flowdesk/pkg/schema"
)

// BuildOptions tunes how a RenderModel is assembled.
type BuildOptions struct {
	Title    string
	Selected string
}

// Build constructs a RenderModel from a diagram and the flow's node records.
// Node labels are prefixed with the record's node number when one exists.
// Edges whose endpoints are missing from the diagram are skipped.
func Build(d Diagram, records []schema.FlowNode, opts BuildOptions) *RenderModel {
	byID := make(map[string]schema.FlowNode, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	model := &RenderModel{Title: opts.Title}
	if model.Title == "" {
		model.Title = "Flow"
	}

	present := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if present[n.ID] {
			continue
		}
		present[n.ID] = true
		rn := &RenderNode{ID: n.ID, Label: n.Label, Selected: n.ID == opts.Selected}
		if rec, ok := byID[n.ID]; ok {
			rn.NodeNo = rec.NodeNo
			rn.ExecForm = string(rec.ExecForm)
			if rec.NodeNo != "" {
				rn.Label = fmt.Sprintf("%s. %s", rec.NodeNo, n.Label)
			}
		} else {
			rn.Unrecorded = true
		}
		model.Nodes = append(model.Nodes, rn)
	}

	for _, e := range d.Edges {
		if !present[e.Source] || !present[e.Target] {
			continue
		}
		model.Edges = append(model.Edges, RenderEdge{
			From:  e.Source,
			To:    e.Target,
			Type:  e.Type,
			Label: edgeCaption(e),
		})
	}

	model.Levels = buildLevels(model)
	return model
}

// edgeCaption is the text drawn on an edge: the custom label, or the type
// name for anything that is not a plain sequential edge.
func edgeCaption(e Edge) string {
	if e.Label != "" {
		return e.Label
	}
	if e.Type != EdgeSequential {
		return string(e.Type)
	}
	return ""
}

// buildLevels layers nodes breadth-first from the nodes nobody points at.
// Flow diagrams may loop back, so edges into an already placed node are
// ignored; nodes unreachable from any root start a new pass.
func buildLevels(model *RenderModel) [][]string {
	out := make(map[string][]string)
	indegree := make(map[string]int, len(model.Nodes))
	for _, e := range model.Edges {
		out[e.From] = append(out[e.From], e.To)
		if e.From != e.To {
			indegree[e.To]++
		}
	}

	level := make(map[string]int, len(model.Nodes))
	var levels [][]string
	place := func(id string, depth int) {
		level[id] = depth
		for len(levels) <= depth {
			levels = append(levels, nil)
		}
		levels[depth] = append(levels[depth], id)
	}

	bfs := func(starts []string) {
		queue := make([]string, 0, len(starts))
		for _, id := range starts {
			if _, done := level[id]; done {
				continue
			}
			place(id, 0)
			queue = append(queue, id)
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, next := range out[id] {
				if _, done := level[next]; done {
					continue
				}
				place(next, level[id]+1)
				queue = append(queue, next)
			}
		}
	}

	var roots []string
	for _, n := range model.Nodes {
		if indegree[n.ID] == 0 {
			roots = append(roots, n.ID)
		}
	}
	bfs(roots)
	for _, n := range model.Nodes {
		if _, done := level[n.ID]; !done {
			bfs([]string{n.ID})
		}
	}
	return levels
}
