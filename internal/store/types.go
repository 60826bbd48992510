package store

import (
	"time"

	"github.com/rendis/flowdesk/pkg/schema"
)

// Draft is an unsaved editing session for one flow.
type Draft struct {
	FlowID      string            `json:"flow_id"`
	BaseStatus  schema.FlowStatus `json:"base_status"`
	Flow        schema.Flow       `json:"flow"`
	Nodes       []schema.FlowNode `json:"nodes"`
	DiagramJSON string            `json:"diagram_json"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// DraftFromDetail captures the editable part of a flow detail.
func DraftFromDetail(detail schema.FlowDetail) *Draft {
	nodes := make([]schema.FlowNode, len(detail.Nodes))
	for i, n := range detail.Nodes {
		nodes[i] = n.Clone()
	}
	return &Draft{
		FlowID:      detail.Flow.ID,
		BaseStatus:  detail.Flow.Status,
		Flow:        detail.Flow,
		Nodes:       nodes,
		DiagramJSON: detail.Flow.DiagramJSON,
	}
}

// Detail rebuilds a flow detail from the draft. Totals are left for the
// caller to recompute.
func (d *Draft) Detail() schema.FlowDetail {
	flow := d.Flow
	flow.DiagramJSON = d.DiagramJSON
	nodes := make([]schema.FlowNode, len(d.Nodes))
	for i, n := range d.Nodes {
		nodes[i] = n.Clone()
	}
	return schema.FlowDetail{Flow: flow, Nodes: nodes}
}

// DraftSummary is one row of ListDrafts.
type DraftSummary struct {
	FlowID     string            `json:"flow_id"`
	Title      string            `json:"title"`
	BaseStatus schema.FlowStatus `json:"base_status"`
	NodeCount  int               `json:"node_count"`
	Events     int64             `json:"events"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// DraftFilter narrows ListDrafts.
type DraftFilter struct {
	UpdatedBefore *time.Time
	Limit         int
}
