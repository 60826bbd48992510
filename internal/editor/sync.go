package editor

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/pkg/schema"
)

// NewNodeName is the placeholder name of the n-th node (1-based).
func NewNodeName(n int) string {
	return fmt.Sprintf("New node %d", n)
}

// NewFlowNode returns a record with default field values. position is the
// zero-based insertion position; node_no is position+1.
func NewFlowNode(flowID, id, name string, position int) schema.FlowNode {
	return schema.FlowNode{
		ID:           id,
		FlowID:       flowID,
		NodeNo:       strconv.Itoa(position + 1),
		Name:         name,
		DurationUnit: schema.DurationUnitDay,
		RACI:         schema.RACI{},
		Subtasks:     []string{},
		SortOrder:    position,
	}
}

// Reconcile appends a default record for every diagram node that has none,
// in diagram order. It returns the updated records and the ones it added.
// Calling it again with the same diagram adds nothing.
func Reconcile(flowID string, d diagram.Diagram, records []schema.FlowNode) ([]schema.FlowNode, []schema.FlowNode) {
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.ID] = true
	}

	var added []schema.FlowNode
	prev := len(records)
	for _, dn := range d.Nodes {
		if known[dn.ID] {
			continue
		}
		known[dn.ID] = true
		added = append(added, NewFlowNode(flowID, dn.ID, dn.Label, prev+len(added)))
	}
	if len(added) == 0 {
		return records, nil
	}

	out := make([]schema.FlowNode, 0, len(records)+len(added))
	out = append(out, records...)
	out = append(out, added...)
	return out, added
}

// SyncLabel copies a record's name onto its diagram node. An empty name
// leaves the label as it was.
func SyncLabel(d diagram.Diagram, id, name string) (diagram.Diagram, bool) {
	if name == "" {
		return d, false
	}
	for i, n := range d.Nodes {
		if n.ID != id {
			continue
		}
		if n.Label == name {
			return d, false
		}
		out := d.Clone()
		out.Nodes[i].Label = name
		return out, true
	}
	return d, false
}

// RemoveNode drops a node from both views: its record, its diagram node and
// every edge that starts or ends at it.
func RemoveNode(d diagram.Diagram, records []schema.FlowNode, id string) (diagram.Diagram, []schema.FlowNode) {
	out := slices.DeleteFunc(slices.Clone(records), func(r schema.FlowNode) bool {
		return r.ID == id
	})
	return d.WithoutNode(id), out
}

// Ordered returns records sorted by sort_order, then node_no. Numeric
// node numbers compare as numbers.
func Ordered(records []schema.FlowNode) []schema.FlowNode {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b schema.FlowNode) int {
		if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
			return c
		}
		return compareNodeNo(a.NodeNo, b.NodeNo)
	})
	return out
}

func compareNodeNo(a, b string) int {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(a, b)
}

// Totals sums the duration bounds of all records in days. A missing bound
// contributes nothing.
func Totals(records []schema.FlowNode) (minDays, maxDays float64) {
	for _, r := range records {
		factor := r.DurationUnit.Days()
		if r.DurationMin != nil {
			minDays += *r.DurationMin * factor
		}
		if r.DurationMax != nil {
			maxDays += *r.DurationMax * factor
		}
	}
	return minDays, maxDays
}
