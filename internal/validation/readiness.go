package validation

import (
	"fmt"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/pkg/schema"
)

// ReviewReadiness reports what stops a flow from being submitted for review:
// every diagram node needs a record with a name and an execution form, and
// the diagram must be structurally sound. Records that are not on the
// diagram only produce warnings.
func ReviewReadiness(detail schema.FlowDetail) *schema.ValidationResult {
	d := diagram.Parse(detail.Flow.DiagramJSON)
	result := CheckStructure(d)

	records := make(map[string]int, len(detail.Nodes))
	for i, n := range detail.Nodes {
		records[n.ID] = i
	}

	for _, dn := range d.Nodes {
		if _, ok := records[dn.ID]; !ok {
			result.AddError("nodes["+dn.ID+"]", schema.IssueMissingRecord,
				fmt.Sprintf("step %q has no node record", dn.Label))
		}
	}

	for i, n := range detail.Nodes {
		path := fmt.Sprintf("flow_nodes[%d]", i)
		if n.Name == "" {
			result.AddError(path+".name", schema.IssueMissingName, fmt.Sprintf("node %s has no name", n.NodeNo))
		}
		switch {
		case n.ExecForm == "":
			result.AddError(path+".exec_form", schema.IssueMissingExecForm,
				fmt.Sprintf("node %s has no execution form", n.NodeNo))
		case !n.ExecForm.Valid():
			result.AddError(path+".exec_form", schema.IssueMissingExecForm,
				fmt.Sprintf("node %s has unknown execution form %q", n.NodeNo, n.ExecForm))
		}
		if !d.HasNode(n.ID) {
			result.AddWarning(path, schema.IssueMissingRecord,
				fmt.Sprintf("node %s is not on the diagram", n.NodeNo))
		}
	}
	return result
}
