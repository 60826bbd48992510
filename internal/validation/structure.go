package validation

import (
	"fmt"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/pkg/schema"
)

// CheckStructure reports graph problems of a parsed diagram. Errors: duplicate
// node or edge ids, edges whose endpoints are not on the diagram, self-loops
// and repeated (source, target, type) edges. Warnings: nodes without any
// edge when the diagram has more than one node. Cycles are allowed since
// review loops send work back to an earlier step.
func CheckStructure(d diagram.Diagram) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodes := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			result.AddError(path+".id", schema.IssueSchema, "node id is empty")
			continue
		}
		if nodes[n.ID] {
			result.AddError(path+".id", schema.IssueDuplicateNode, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodes[n.ID] = true
	}

	type connection struct {
		source, target string
		kind           diagram.EdgeType
	}
	edges := make(map[string]bool, len(d.Edges))
	connections := make(map[connection]string, len(d.Edges))
	linked := make(map[string]bool, len(d.Nodes))

	for i, e := range d.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if e.ID != "" && edges[e.ID] {
			result.AddError(path+".id", schema.IssueDuplicateEdge, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edges[e.ID] = true

		dangling := false
		if !nodes[e.Source] {
			result.AddError(path+".source", schema.IssueDanglingEdge,
				fmt.Sprintf("edge %q starts at unknown node %q", e.ID, e.Source))
			dangling = true
		}
		if !nodes[e.Target] {
			result.AddError(path+".target", schema.IssueDanglingEdge,
				fmt.Sprintf("edge %q ends at unknown node %q", e.ID, e.Target))
			dangling = true
		}
		if dangling {
			continue
		}
		if e.Source == e.Target {
			result.AddError(path, schema.IssueSelfLoop, fmt.Sprintf("edge %q connects node %q to itself", e.ID, e.Source))
			continue
		}

		key := connection{e.Source, e.Target, e.Type}
		if first, ok := connections[key]; ok {
			result.AddError(path, schema.IssueParallelEdge,
				fmt.Sprintf("edge %q repeats %s connection %s -> %s of edge %q", e.ID, e.Type, e.Source, e.Target, first))
			continue
		}
		connections[key] = e.ID
		linked[e.Source] = true
		linked[e.Target] = true
	}

	if len(nodes) > 1 {
		for i, n := range d.Nodes {
			if n.ID != "" && !linked[n.ID] {
				result.AddWarning(fmt.Sprintf("nodes[%d]", i), schema.IssueIsolatedNode,
					fmt.Sprintf("node %q has no connections", n.ID))
			}
		}
	}
	return result
}
