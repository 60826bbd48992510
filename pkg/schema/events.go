package schema

import (
	"encoding/json"
	"time"
)

// Editor event kinds recorded in the local event log and streamed to subscribers.
const (
	EventDiagramReplaced   = "diagram_replaced"
	EventDiagramImported   = "diagram_imported"
	EventNodeAdded         = "node_added"
	EventNodeUpdated       = "node_updated"
	EventNodeRenamed       = "node_renamed"
	EventNodeDeleted       = "node_deleted"
	EventNodesReconciled   = "nodes_reconciled"
	EventNodesMoved        = "nodes_moved"
	EventNodeSelected      = "node_selected"
	EventConnectionStarted = "connection_started"
	EventConnectionCancel  = "connection_cancelled"
	EventEdgeAdded         = "edge_added"
	EventFlowSaved         = "flow_saved"
	EventFlowTransitioned  = "flow_transitioned"
	EventDraftDiscarded    = "draft_discarded"
)

// EditorEvent is a single change applied to an editing session.
type EditorEvent struct {
	FlowID    string          `json:"flow_id"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	NodeID    string          `json:"node_id,omitempty"`
	EdgeID    string          `json:"edge_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
