// Package editor keeps a flow's diagram and its node records consistent
// while a user edits them.
package editor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/lifecycle"
	"github.com/rendis/flowdesk/internal/logging"
	"github.com/rendis/flowdesk/internal/store"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/internal/view"
	"github.com/rendis/flowdesk/pkg/schema"
)

// Publisher receives every editor event; satisfied by streaming.MemoryHub.
type Publisher interface {
	Publish(ctx context.Context, event schema.EditorEvent) error
}

// DraftStore keeps unsaved sessions across restarts; satisfied by store.Store.
type DraftStore interface {
	SaveDraft(ctx context.Context, draft *store.Draft) error
	DeleteDraft(ctx context.Context, flowID string) error
}

// Saver persists a flow; satisfied by client.Client.
type Saver interface {
	UpdateFlow(ctx context.Context, flowID string, req schema.UpdateFlowRequest) (*schema.FlowDetail, error)
}

// Options configures an Editor. Every field is optional.
type Options struct {
	// Editable enables mutations. Callers derive it from the flow status and
	// the session (see session.Affordances).
	Editable bool
	IDs      IDGenerator
	Events   lifecycle.EventAppender
	Hub      Publisher
	Drafts   DraftStore
	Logger   *slog.Logger
	Now      func() time.Time
}

// State is a consistent copy of the editor's data.
type State struct {
	Flow     schema.Flow        `json:"flow"`
	Diagram  diagram.Diagram    `json:"diagram"`
	Nodes    []schema.FlowNode  `json:"nodes"`
	Selected string             `json:"selected,omitempty"`
	Pending  *PendingConnection `json:"pending,omitempty"`
	Editable bool               `json:"editable"`
	Dirty    bool               `json:"dirty"`
}

// Editor owns one flow's editing session. All methods are safe for
// concurrent use; each mutation is applied atomically to both views.
type Editor struct {
	mu       sync.Mutex
	flow     schema.Flow
	diagram  diagram.Diagram
	nodes    []schema.FlowNode
	selected string
	connect  *ConnectFlow
	editable bool
	dirty    bool
	saving   bool
	rev      uint64

	ids    IDGenerator
	events lifecycle.EventAppender
	hub    Publisher
	drafts DraftStore
	logger *slog.Logger
	now    func() time.Time
}

// New opens an editing session on a flow as served by the backend. When
// editable, diagram nodes without a record get one immediately.
func New(detail schema.FlowDetail, opts Options) *Editor {
	if opts.IDs == nil {
		opts.IDs = UUIDs{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Editor{
		editable: opts.Editable,
		ids:      opts.IDs,
		events:   opts.Events,
		hub:      opts.Hub,
		drafts:   opts.Drafts,
		logger:   opts.Logger,
		now:      opts.Now,
		connect:  NewConnectFlow(opts.IDs),
	}
	e.load(detail)
	return e
}

// Resume reopens an unsaved session from a stored draft. The session starts
// dirty so the next Save pushes the draft to the backend.
func Resume(draft *store.Draft, opts Options) *Editor {
	e := New(draft.Detail(), opts)
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
	return e
}

func (e *Editor) load(detail schema.FlowDetail) {
	e.flow = detail.Flow
	e.diagram = diagram.Parse(detail.Flow.DiagramJSON)
	e.nodes = make([]schema.FlowNode, 0, len(detail.Nodes))
	for _, n := range detail.Nodes {
		e.nodes = append(e.nodes, n.Clone())
	}
	e.selected = ""
	e.connect.reset()
	e.dirty = false
	if e.editable {
		var added []schema.FlowNode
		e.nodes, added = Reconcile(e.flow.ID, e.diagram, e.nodes)
		e.dirty = len(added) > 0
	}
}

// Reload replaces the session state with a fresh copy from the backend.
func (e *Editor) Reload(detail schema.FlowDetail) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load(detail)
	e.rev++
}

// SetEditable switches the session between edit and read-only mode, e.g.
// after a lifecycle transition. Leaving edit mode drops a pending connection.
func (e *Editor) SetEditable(editable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.editable = editable
	if !editable {
		e.connect.reset()
	}
}

// Detail returns the session as a flow detail, with the diagram serialized
// into the flow and the duration totals recomputed.
func (e *Editor) Detail() schema.FlowDetail {
	e.mu.Lock()
	defer e.mu.Unlock()
	flow := e.flow
	flow.DiagramJSON = diagram.Serialize(e.diagram)
	nodes := make([]schema.FlowNode, len(e.nodes))
	for i, n := range e.nodes {
		nodes[i] = n.Clone()
	}
	minDays, maxDays := Totals(nodes)
	return schema.FlowDetail{Flow: flow, Nodes: nodes, TotalDurationMinDays: minDays, TotalDurationMaxDays: maxDays}
}

// FlowID returns the id of the flow being edited.
func (e *Editor) FlowID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.ID
}

func (e *Editor) Editable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editable
}

// State returns a deep copy of the session.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		Flow:     e.flow,
		Diagram:  e.diagram.Clone(),
		Nodes:    make([]schema.FlowNode, len(e.nodes)),
		Selected: e.selected,
		Editable: e.editable,
		Dirty:    e.dirty,
	}
	for i, n := range e.nodes {
		s.Nodes[i] = n.Clone()
	}
	if p, ok := e.connect.Pending(); ok {
		s.Pending = &p
	}
	return s
}

// Diagram returns a copy of the current diagram.
func (e *Editor) Diagram() diagram.Diagram {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diagram.Clone()
}

// Node returns a copy of the record with the given id.
func (e *Editor) Node(id string) (schema.FlowNode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexOf(id); i >= 0 {
		return e.nodes[i].Clone(), true
	}
	return schema.FlowNode{}, false
}

// Canvas renders the diagram for the canvas widget.
func (e *Editor) Canvas() view.Canvas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return view.BuildCanvas(e.diagram, e.selected, e.editable)
}

// SetDiagram replaces the diagram, as the canvas does after any structural
// change, and creates records for nodes that have none.
func (e *Editor) SetDiagram(ctx context.Context, d diagram.Diagram) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return err
	}
	e.setDiagramLocked(ctx, d.Clone(), schema.EventDiagramReplaced)
	return nil
}

// ImportJSON replaces the diagram with pasted JSON. A document that is not
// a diagram leaves the session unchanged and is reported as an error.
func (e *Editor) ImportJSON(ctx context.Context, raw string) error {
	d, err := diagram.ParseStrict(raw)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return err
	}
	e.setDiagramLocked(ctx, d, schema.EventDiagramImported)
	return nil
}

func (e *Editor) setDiagramLocked(ctx context.Context, d diagram.Diagram, kind string) {
	e.diagram = d
	var added []schema.FlowNode
	e.nodes, added = Reconcile(e.flow.ID, e.diagram, e.nodes)
	if e.selected != "" && !e.diagram.HasNode(e.selected) && e.indexOf(e.selected) < 0 {
		e.selected = ""
	}
	if p, ok := e.connect.Pending(); ok && (!d.HasNode(p.Source) || !d.HasNode(p.Target)) {
		e.connect.reset()
	}
	e.touch(ctx)
	e.emit(ctx, kind, "", "", map[string]int{"nodes": len(d.Nodes), "edges": len(d.Edges)})
	if len(added) > 0 {
		ids := make([]string, len(added))
		for i, n := range added {
			ids[i] = n.ID
		}
		e.emit(ctx, schema.EventNodesReconciled, "", "", map[string]any{"added": ids})
	}
}

// ApplyPositions applies canvas gestures; only position changes mutate.
func (e *Editor) ApplyPositions(ctx context.Context, changes []view.NodeChange) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return false, err
	}
	d, changed := view.ApplyChanges(e.diagram, changes)
	if !changed {
		return false, nil
	}
	e.diagram = d
	e.touch(ctx)
	e.emit(ctx, schema.EventNodesMoved, "", "", changes)
	return true, nil
}

// AddNodeFromDiagram drops a new node onto the canvas at the next grid slot,
// creates its record and selects it.
func (e *Editor) AddNodeFromDiagram(ctx context.Context) (schema.FlowNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return schema.FlowNode{}, err
	}
	id := e.mintNodeID()
	x, y := diagram.GridPosition(len(e.diagram.Nodes))
	d := e.diagram.Clone()
	d.Nodes = append(d.Nodes, diagram.Node{ID: id, Label: NewNodeName(len(e.diagram.Nodes) + 1), X: x, Y: y})
	e.setDiagramLocked(ctx, d, schema.EventNodeAdded)
	e.selected = id
	e.emit(ctx, schema.EventNodeSelected, id, "", nil)
	return e.nodes[e.indexOf(id)].Clone(), nil
}

// AddNodeFromPanel creates a record with a placeholder name, places its
// diagram node at the next grid slot and selects it.
func (e *Editor) AddNodeFromPanel(ctx context.Context) (schema.FlowNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return schema.FlowNode{}, err
	}
	id := e.mintNodeID()
	node := NewFlowNode(e.flow.ID, id, NewNodeName(len(e.nodes)+1), len(e.nodes))
	e.nodes = append(e.nodes, node)

	x, y := diagram.GridPosition(len(e.diagram.Nodes))
	d := e.diagram.Clone()
	d.Nodes = append(d.Nodes, diagram.Node{ID: id, Label: node.Name, X: x, Y: y})
	e.diagram = d
	e.selected = id
	e.touch(ctx)
	e.emit(ctx, schema.EventNodeAdded, id, "", node)
	return node.Clone(), nil
}

// UpdateNode replaces a record with the panel's edited copy. A non-empty
// name is copied onto the diagram label; an empty one leaves it alone.
func (e *Editor) UpdateNode(ctx context.Context, node schema.FlowNode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return err
	}
	i := e.indexOf(node.ID)
	if i < 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", node.ID).WithNode(node.ID)
	}
	if node.FlowID == "" {
		node.FlowID = e.flow.ID
	}
	e.nodes[i] = node.Clone()
	d, renamed := SyncLabel(e.diagram, node.ID, node.Name)
	e.diagram = d
	e.touch(ctx)
	e.emit(ctx, schema.EventNodeUpdated, node.ID, "", nil)
	if renamed {
		e.emit(ctx, schema.EventNodeRenamed, node.ID, "", map[string]string{"label": node.Name})
	}
	return nil
}

// DeleteSelected removes the selected node from both views and clears the
// selection. Without a selection it does nothing.
func (e *Editor) DeleteSelected(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return err
	}
	if e.selected == "" {
		return nil
	}
	e.deleteLocked(ctx, e.selected)
	return nil
}

// DeleteNode removes a node chosen on the canvas from both views.
func (e *Editor) DeleteNode(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return err
	}
	if e.indexOf(id) < 0 && !e.diagram.HasNode(id) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id).WithNode(id)
	}
	e.deleteLocked(ctx, id)
	return nil
}

func (e *Editor) deleteLocked(ctx context.Context, id string) {
	e.diagram, e.nodes = RemoveNode(e.diagram, e.nodes, id)
	if e.selected == id {
		e.selected = ""
	}
	if e.connect.Involves(id) {
		e.connect.reset()
	}
	e.touch(ctx)
	e.emit(ctx, schema.EventNodeDeleted, id, "", nil)
}

// BeginConnection starts the edge-type resolution flow for a drawn connection.
func (e *Editor) BeginConnection(ctx context.Context, source, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.connect.Begin(e.diagram, e.editable, source, target); err != nil {
		return err
	}
	e.emit(ctx, schema.EventConnectionStarted, source, "", PendingConnection{Source: source, Target: target})
	return nil
}

// ConfirmConnection commits the pending connection with the chosen type.
func (e *Editor) ConfirmConnection(ctx context.Context, edgeType diagram.EdgeType, label string) (diagram.Edge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireEditable(); err != nil {
		return diagram.Edge{}, err
	}
	d, edge, err := e.connect.Confirm(e.diagram, edgeType, label)
	if err != nil {
		return diagram.Edge{}, err
	}
	e.diagram = d
	e.touch(ctx)
	e.emit(ctx, schema.EventEdgeAdded, edge.Source, edge.ID, edge)
	return edge, nil
}

// CancelConnection discards the pending connection, if any.
func (e *Editor) CancelConnection(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connect.Cancel() {
		e.emit(ctx, schema.EventConnectionCancel, "", "", nil)
	}
}

// Validate runs the structural diagram checks against the current session.
func (e *Editor) Validate() *schema.ValidationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return validation.CheckStructure(e.diagram)
}

// Snapshot builds the PUT body for the current session.
func (e *Editor) Snapshot() schema.UpdateFlowRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateRequestLocked()
}

func (e *Editor) updateRequestLocked() schema.UpdateFlowRequest {
	nodes := make([]schema.FlowNode, len(e.nodes))
	for i, n := range e.nodes {
		nodes[i] = n.Clone()
	}
	return schema.UpdateFlowRequest{
		Title:       e.flow.Title,
		OwnerDeptID: e.flow.OwnerDeptID,
		Overview:    e.flow.Overview,
		DiagramJSON: diagram.Serialize(e.diagram),
		Nodes:       nodes,
	}
}

// Save sends the session to the backend. Structural diagram errors block
// the request. A second Save while one is in flight is refused rather than
// queued, and an in-flight save is not cancelled by the editor.
func (e *Editor) Save(ctx context.Context, saver Saver) error {
	e.mu.Lock()
	if err := e.requireEditable(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.saving {
		e.mu.Unlock()
		return schema.NewError(schema.ErrCodeSaveInProgress, "a save is already in progress")
	}
	if res := validation.CheckStructure(e.diagram); !res.Valid() {
		e.mu.Unlock()
		return res.ToError()
	}
	raw, err := diagram.Encode(e.diagram)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	req := e.updateRequestLocked()
	req.DiagramJSON = raw
	flowID, rev := e.flow.ID, e.rev
	e.saving = true
	e.mu.Unlock()

	ctx = logging.WithFlowID(ctx, flowID)
	detail, err := saver.UpdateFlow(ctx, flowID, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.saving = false
	if err != nil {
		e.logger.WarnContext(ctx, "save failed", slog.String("error", err.Error()))
		return err
	}
	if detail != nil {
		e.flow = detail.Flow
	}
	if e.rev == rev {
		e.dirty = false
		if e.drafts != nil {
			if err := e.drafts.DeleteDraft(ctx, flowID); err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
				e.logger.WarnContext(ctx, "drop saved draft", slog.String("error", err.Error()))
			}
		}
	}
	e.emit(ctx, schema.EventFlowSaved, "", "", map[string]int{"nodes": len(req.Nodes)})
	return nil
}

func (e *Editor) requireEditable() error {
	if !e.editable {
		return schema.NewErrorf(schema.ErrCodeReadOnly, "flow %s is not editable", e.flow.ID).
			WithDetails(map[string]any{"status": string(e.flow.Status)})
	}
	return nil
}

func (e *Editor) indexOf(id string) int {
	for i, n := range e.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (e *Editor) mintNodeID() string {
	for {
		id := e.ids.NodeID()
		if id != "" && e.indexOf(id) < 0 && !e.diagram.HasNode(id) {
			return id
		}
	}
}

func (e *Editor) touch(ctx context.Context) {
	e.dirty = true
	e.rev++
	if e.drafts == nil {
		return
	}
	if err := e.drafts.SaveDraft(ctx, e.draftLocked()); err != nil {
		e.logger.WarnContext(logging.WithFlowID(ctx, e.flow.ID), "persist draft", slog.String("error", err.Error()))
	}
}

func (e *Editor) draftLocked() *store.Draft {
	nodes := make([]schema.FlowNode, len(e.nodes))
	for i, n := range e.nodes {
		nodes[i] = n.Clone()
	}
	return &store.Draft{
		FlowID:      e.flow.ID,
		BaseStatus:  e.flow.Status,
		Flow:        e.flow,
		Nodes:       nodes,
		DiagramJSON: diagram.Serialize(e.diagram),
	}
}

// emit records an event in the local log and fans it out to subscribers.
// Failures are logged; they never undo the edit.
func (e *Editor) emit(ctx context.Context, kind, nodeID, edgeID string, payload any) {
	event := schema.EditorEvent{
		FlowID:    e.flow.ID,
		Kind:      kind,
		NodeID:    nodeID,
		EdgeID:    edgeID,
		Timestamp: e.now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			event.Payload = raw
		}
	}

	ctx = logging.WithFlowID(ctx, e.flow.ID)
	if nodeID != "" {
		ctx = logging.WithNodeID(ctx, nodeID)
	}
	e.logger.DebugContext(ctx, "editor event", slog.String("kind", kind))

	if e.events != nil {
		if err := e.events.AppendEvent(ctx, &event); err != nil {
			e.logger.WarnContext(ctx, "record editor event", slog.String("kind", kind), slog.String("error", err.Error()))
		}
	}
	if e.hub != nil {
		if err := e.hub.Publish(ctx, event); err != nil {
			e.logger.WarnContext(ctx, "publish editor event", slog.String("kind", kind), slog.String("error", err.Error()))
		}
	}
}
