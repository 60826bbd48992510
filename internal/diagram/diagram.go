package diagram

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/rendis/flowdesk/pkg/schema"
)

// EdgeType classifies the connection between two steps.
type EdgeType string

const (
	EdgeSequential  EdgeType = "SEQUENTIAL"
	EdgeConditional EdgeType = "CONDITIONAL"
	EdgeParallel    EdgeType = "PARALLEL"
)

// EdgeTypes lists the selectable edge types, default first.
var EdgeTypes = []EdgeType{EdgeSequential, EdgeConditional, EdgeParallel}

func (t EdgeType) Valid() bool {
	switch t {
	case EdgeSequential, EdgeConditional, EdgeParallel:
		return true
	}
	return false
}

// Node is a positioned box on the canvas.
type Node struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Edge is a directed, typed connection between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Label  string   `json:"label,omitempty"`
}

// Diagram is the persisted graph of a flow. Order of nodes and edges is kept
// as authored so rendering stays stable.
type Diagram struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty returns a diagram with no nodes and no edges.
func Empty() Diagram {
	return Diagram{Nodes: []Node{}, Edges: []Edge{}}
}

// Parse decodes a persisted diagram. Anything that is not a well-formed
// diagram document decodes to an empty diagram.
func Parse(raw string) Diagram {
	d, err := decode([]byte(raw))
	if err != nil {
		return Empty()
	}
	return d
}

// ParseStrict decodes a diagram that must carry both the nodes and the edges
// arrays. It is used for pasted or imported JSON, where a rejected document
// should leave the current diagram untouched.
func ParseStrict(raw string) (Diagram, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Diagram{}, schema.NewError(schema.ErrCodeValidation, "diagram is not a JSON object").WithCause(err)
	}
	for _, key := range []string{"nodes", "edges"} {
		v, ok := fields[key]
		if !ok || !bytes.HasPrefix(bytes.TrimSpace(v), []byte("[")) {
			return Diagram{}, schema.NewErrorf(schema.ErrCodeValidation, "diagram %q must be an array", key)
		}
	}
	d, err := decode([]byte(raw))
	if err != nil {
		return Diagram{}, schema.NewError(schema.ErrCodeValidation, "malformed diagram").WithCause(err)
	}
	return d, nil
}

func decode(data []byte) (Diagram, error) {
	var d Diagram
	if err := json.Unmarshal(data, &d); err != nil {
		return Diagram{}, err
	}
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	return d, nil
}

// Serialize encodes the diagram for storage on the flow record. An empty
// diagram serializes to "" so no placeholder document is persisted. It is
// meant for display and drafts; use Encode where a lost diagram matters.
func Serialize(d Diagram) string {
	out, err := Encode(d)
	if err != nil {
		return ""
	}
	return out
}

// Encode is Serialize that reports encoding failures, which only non-finite
// coordinates cause.
func Encode(d Diagram) (string, error) {
	if d.IsEmpty() {
		return "", nil
	}
	out := Diagram{Nodes: d.Nodes, Edges: d.Edges}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, "diagram cannot be encoded").WithCause(err)
	}
	return string(data), nil
}

// IsEmpty reports whether the diagram has neither nodes nor edges.
func (d Diagram) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}

// Clone returns a copy that shares no slices with d.
func (d Diagram) Clone() Diagram {
	out := Diagram{Nodes: slices.Clone(d.Nodes), Edges: slices.Clone(d.Edges)}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}

// Node returns the node with the given id.
func (d Diagram) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether a node with the given id exists.
func (d Diagram) HasNode(id string) bool {
	_, ok := d.Node(id)
	return ok
}

// HasEdge reports whether an edge with the given id exists.
func (d Diagram) HasEdge(id string) bool {
	for _, e := range d.Edges {
		if e.ID == id {
			return true
		}
	}
	return false
}

// NodeIDs returns node ids in diagram order.
func (d Diagram) NodeIDs() []string {
	ids := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// WithoutNode returns a copy of d without the node and every edge touching it.
func (d Diagram) WithoutNode(id string) Diagram {
	out := Empty()
	for _, n := range d.Nodes {
		if n.ID != id {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range d.Edges {
		if e.Source != id && e.Target != id {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// GridPosition is the canvas slot for the i-th added node: five columns,
// 180px apart, rows 120px apart, starting at (100, 100).
func GridPosition(i int) (x, y float64) {
	return float64(100 + (i%5)*180), float64(100 + (i/5)*120)
}
