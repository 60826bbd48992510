package diagram

// RenderModel is the intermediate representation used by all renderers.
type RenderModel struct {
	Title  string
	Nodes  []*RenderNode
	Edges  []RenderEdge
	Levels [][]string
}

// RenderNode is one step as it should be drawn.
type RenderNode struct {
	ID       string
	Label    string
	NodeNo   string
	ExecForm string
	Selected bool
	// Unrecorded marks a diagram node with no FlowNode behind it yet.
	Unrecorded bool
}

// RenderEdge is a typed connection between two render nodes.
type RenderEdge struct {
	From  string
	To    string
	Type  EdgeType
	Label string
}
