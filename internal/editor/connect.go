package editor

import (
	"strings"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/lifecycle"
	"github.com/rendis/flowdesk/pkg/schema"
)

// ConnectState is the state of the edge-type resolution flow.
type ConnectState string

const (
	ConnectIdle    ConnectState = "idle"
	ConnectPending ConnectState = "pending"
)

// PendingConnection is a drawn connection waiting for its edge type.
type PendingConnection struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// maxIDAttempts bounds how often a colliding edge id is re-minted.
const maxIDAttempts = 16

// ConnectFlow turns a drag-to-connect gesture into a typed edge:
// Idle -> Pending on Begin, Pending -> Idle on Confirm or Cancel.
// It is not safe for concurrent use; Editor serializes access.
type ConnectFlow struct {
	state   ConnectState
	pending PendingConnection
	ids     IDGenerator
	before  []lifecycle.TransitionHook
	after   []lifecycle.TransitionHook
}

// NewConnectFlow creates an idle flow minting edge ids from ids.
func NewConnectFlow(ids IDGenerator) *ConnectFlow {
	if ids == nil {
		ids = UUIDs{}
	}
	return &ConnectFlow{state: ConnectIdle, ids: ids}
}

func (c *ConnectFlow) State() ConnectState { return c.state }

// OnBefore registers a hook run before Begin and Confirm take effect.
// A hook error aborts the transition and leaves the state unchanged.
func (c *ConnectFlow) OnBefore(hook lifecycle.TransitionHook) {
	c.before = append(c.before, hook)
}

// OnAfter registers a hook run after every transition, Cancel included.
// Its error is ignored.
func (c *ConnectFlow) OnAfter(hook lifecycle.TransitionHook) {
	c.after = append(c.after, hook)
}

func (c *ConnectFlow) runBefore(to ConnectState) error {
	for _, h := range c.before {
		if err := h(string(c.state), string(to)); err != nil {
			return schema.NewErrorf(schema.ErrCodeInvalidTransition, "connection %s -> %s refused", c.state, to).WithCause(err)
		}
	}
	return nil
}

func (c *ConnectFlow) runAfter(from ConnectState) {
	for _, h := range c.after {
		_ = h(string(from), string(c.state))
	}
}

// Pending returns the connection awaiting a type, if any.
func (c *ConnectFlow) Pending() (PendingConnection, bool) {
	if c.state != ConnectPending {
		return PendingConnection{}, false
	}
	return c.pending, true
}

// Begin records a drawn connection. Both endpoints must be distinct nodes
// of d, and the diagram must be editable.
func (c *ConnectFlow) Begin(d diagram.Diagram, editable bool, source, target string) error {
	if c.state != ConnectIdle {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"connection %s -> %s already pending", c.pending.Source, c.pending.Target).
			WithDetails(map[string]any{"from": string(c.state), "to": string(ConnectPending)})
	}
	if !editable {
		return schema.NewError(schema.ErrCodeReadOnly, "diagram is read-only")
	}
	if err := checkEndpoints(d, source, target); err != nil {
		return err
	}
	if err := c.runBefore(ConnectPending); err != nil {
		return err
	}
	c.pending = PendingConnection{Source: source, Target: target}
	c.state = ConnectPending
	c.runAfter(ConnectIdle)
	return nil
}

// Confirm appends the pending connection to d as an edge of the chosen type
// and returns to Idle. An empty type means SEQUENTIAL. The label is kept for
// CONDITIONAL edges only. A duplicate (source, target, type) edge is
// rejected and the connection stays pending so another type can be picked.
func (c *ConnectFlow) Confirm(d diagram.Diagram, edgeType diagram.EdgeType, label string) (diagram.Diagram, diagram.Edge, error) {
	if c.state != ConnectPending {
		return d, diagram.Edge{}, schema.NewError(schema.ErrCodeInvalidTransition, "no pending connection to confirm").
			WithDetails(map[string]any{"from": string(c.state), "to": string(ConnectIdle)})
	}
	if edgeType == "" {
		edgeType = diagram.EdgeSequential
	}
	if !edgeType.Valid() {
		return d, diagram.Edge{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown edge type %q", edgeType)
	}

	p := c.pending
	if err := checkEndpoints(d, p.Source, p.Target); err != nil {
		// An endpoint vanished while the type picker was open.
		c.reset()
		return d, diagram.Edge{}, err
	}
	for _, e := range d.Edges {
		if e.Source == p.Source && e.Target == p.Target && e.Type == edgeType {
			return d, diagram.Edge{}, schema.NewErrorf(schema.ErrCodeConflict,
				"%s edge %s -> %s already exists", edgeType, p.Source, p.Target).
				WithDetails(map[string]any{"edge_id": e.ID})
		}
	}

	id, err := c.mintEdgeID(d, p)
	if err != nil {
		return d, diagram.Edge{}, err
	}
	if err := c.runBefore(ConnectIdle); err != nil {
		return d, diagram.Edge{}, err
	}

	edge := diagram.Edge{ID: id, Source: p.Source, Target: p.Target, Type: edgeType}
	if edgeType == diagram.EdgeConditional {
		edge.Label = strings.TrimSpace(label)
	}

	out := d.Clone()
	out.Edges = append(out.Edges, edge)
	c.reset()
	c.runAfter(ConnectPending)
	return out, edge, nil
}

// Cancel discards the pending connection. It reports whether one was pending.
func (c *ConnectFlow) Cancel() bool {
	if c.state != ConnectPending {
		return false
	}
	c.reset()
	c.runAfter(ConnectPending)
	return true
}

// Involves reports whether the pending connection touches node id.
func (c *ConnectFlow) Involves(id string) bool {
	return c.state == ConnectPending && (c.pending.Source == id || c.pending.Target == id)
}

func (c *ConnectFlow) reset() {
	c.state = ConnectIdle
	c.pending = PendingConnection{}
}

func (c *ConnectFlow) mintEdgeID(d diagram.Diagram, p PendingConnection) (string, error) {
	for range maxIDAttempts {
		id := c.ids.EdgeID(p.Source, p.Target)
		if id != "" && !d.HasEdge(id) {
			return id, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeConflict, "could not mint a unique edge id for %s -> %s", p.Source, p.Target)
}

func checkEndpoints(d diagram.Diagram, source, target string) error {
	if source == "" || target == "" {
		return schema.NewError(schema.ErrCodeInvalidConnection, "connection needs both a source and a target")
	}
	if source == target {
		return schema.NewError(schema.ErrCodeInvalidConnection, "a step cannot connect to itself").WithNode(source)
	}
	for _, id := range []string{source, target} {
		if !d.HasNode(id) {
			return schema.NewErrorf(schema.ErrCodeInvalidConnection, "node %s is not on the diagram", id).WithNode(id)
		}
	}
	return nil
}
