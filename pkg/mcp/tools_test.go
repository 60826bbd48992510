package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/pkg/schema"
)

const sampleDiagram = `{"nodes":[{"id":"n1","label":"Draft contract","x":0,"y":0},{"id":"n2","label":"Sign","x":220,"y":0}],` +
	`"edges":[{"id":"e1","source":"n1","target":"n2","type":"SEQUENTIAL"}]}`

// --- Mock saver ---

type mockSaver struct {
	calls int
	req   schema.UpdateFlowRequest
	err   error
}

func (m *mockSaver) UpdateFlow(_ context.Context, flowID string, req schema.UpdateFlowRequest) (*schema.FlowDetail, error) {
	m.calls++
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &schema.FlowDetail{Flow: schema.Flow{ID: flowID, Title: req.Title, Status: schema.FlowStatusDraft, DiagramJSON: req.DiagramJSON}}, nil
}

// --- Helper ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func newTestServer(t *testing.T, status schema.FlowStatus) (*FlowdeskServer, *editor.Editor, *mockSaver) {
	t.Helper()
	flow := schema.Flow{ID: "f1", Title: "Procurement", Status: status, DiagramJSON: sampleDiagram}
	e := editor.New(schema.FlowDetail{Flow: flow}, editor.Options{
		Editable: status == schema.FlowStatusDraft,
		IDs:      &editor.Sequence{},
	})
	v, err := validation.NewDiagramValidator()
	require.NoError(t, err)
	saver := &mockSaver{}
	s := NewFlowdeskServer(FlowdeskServerDeps{Editor: e, Saver: saver, Validator: v})
	return s, e, saver
}

// --- Tests ---

func TestGetFlowTool(t *testing.T) {
	s, _, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleGetFlow(context.Background(), buildRequest("flowdesk.get_flow", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var body struct {
		Flow     schema.Flow       `json:"flow"`
		Nodes    []schema.FlowNode `json:"nodes"`
		Editable bool              `json:"editable"`
		Dirty    bool              `json:"dirty"`
	}
	unmarshalResult(t, result, &body)
	assert.Equal(t, "Procurement", body.Flow.Title)
	require.Len(t, body.Nodes, 2)
	assert.Equal(t, "Draft contract", body.Nodes[0].Name)
	assert.True(t, body.Editable)
	assert.True(t, body.Dirty)
}

func TestGetFlowToolFilters(t *testing.T) {
	s, e, _ := newTestServer(t, schema.FlowStatusDraft)
	node, ok := e.Node("n2")
	require.True(t, ok)
	node.ExecForm = schema.ExecFormDocReview
	require.NoError(t, e.UpdateNode(context.Background(), node))

	tests := []struct {
		engine string
		where  string
	}{
		{"expr", `exec_form == "DOC_REVIEW"`},
		{"cel", `node.exec_form == "DOC_REVIEW"`},
		{"jq", `.exec_form == "DOC_REVIEW"`},
	}
	for _, tc := range tests {
		t.Run(tc.engine, func(t *testing.T) {
			result, err := s.handleGetFlow(context.Background(), buildRequest("flowdesk.get_flow", map[string]any{
				"where":  tc.where,
				"engine": tc.engine,
			}))
			require.NoError(t, err)
			require.False(t, result.IsError, extractText(t, result))

			var body struct {
				Nodes []schema.FlowNode `json:"nodes"`
			}
			unmarshalResult(t, result, &body)
			require.Len(t, body.Nodes, 1)
			assert.Equal(t, "n2", body.Nodes[0].ID)
		})
	}

	result, err := s.handleGetFlow(context.Background(), buildRequest("flowdesk.get_flow", map[string]any{"where": `name`}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "non-boolean predicates are rejected")
}

func TestRenderTool(t *testing.T) {
	s, _, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleRender(context.Background(), buildRequest("flowdesk.render", map[string]any{"format": "mermaid"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text := extractText(t, result)
	assert.Contains(t, text, "graph TD")
	assert.Contains(t, text, "Draft contract")

	result, err = s.handleRender(context.Background(), buildRequest("flowdesk.render", map[string]any{"format": "ascii"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "Sign")

	result, err = s.handleRender(context.Background(), buildRequest("flowdesk.render", map[string]any{"format": "svg"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleRender(context.Background(), buildRequest("flowdesk.render", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAddNodeTool(t *testing.T) {
	s, e, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleAddNode(context.Background(), buildRequest("flowdesk.add_node", map[string]any{
		"name":      "Archive",
		"exec_form": "SYSTEM_OPERATION",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var node schema.FlowNode
	unmarshalResult(t, result, &node)
	assert.Equal(t, "Archive", node.Name)
	assert.Equal(t, schema.ExecFormSystemOperation, node.ExecForm)

	d := e.Diagram()
	require.Len(t, d.Nodes, 3)
	assert.Equal(t, "Archive", d.Nodes[2].Label)
}

func TestUpdateNodeTool(t *testing.T) {
	s, e, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleUpdateNode(context.Background(), buildRequest("flowdesk.update_node", map[string]any{
		"node_id": "n1",
		"fields": map[string]any{
			"name":          "Draft agreement",
			"exec_form":     "DOC_REVIEW",
			"duration_min":  1.5,
			"duration_max":  "3",
			"duration_unit": "DAY",
			"raci":          map[string]any{"R": []any{"Legal", "Legal", " Sales "}},
			"subtasks":      []any{"Template", "", "Review"},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	node, ok := e.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "Draft agreement", node.Name)
	require.NotNil(t, node.DurationMin)
	assert.Equal(t, 1.5, *node.DurationMin)
	assert.Equal(t, []string{"Legal", "Sales"}, node.RACI[schema.RACIResponsible])
	assert.Equal(t, []string{"Template", "Review"}, node.Subtasks)
	assert.Equal(t, "Draft agreement", e.Diagram().Nodes[0].Label)
}

func TestUpdateNodeToolErrors(t *testing.T) {
	s, _, _ := newTestServer(t, schema.FlowStatusDraft)

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"missing node", map[string]any{"node_id": "zz", "fields": map[string]any{"name": "x"}}, ""},
		{"unknown field", map[string]any{"node_id": "n1", "fields": map[string]any{"color": "red"}}, schema.ErrCodeValidation},
		{"bad type", map[string]any{"node_id": "n1", "fields": map[string]any{"subtasks": "one"}}, schema.ErrCodeValidation},
		{"min above max", map[string]any{"node_id": "n1", "fields": map[string]any{
			"exec_form": "DOC_REVIEW", "duration_min": 5.0, "duration_max": 2.0,
		}}, schema.ErrCodeValidation},
		{"non-finite bound", map[string]any{"node_id": "n1", "fields": map[string]any{
			"exec_form": "DOC_REVIEW", "duration_max": "NaN",
		}}, schema.ErrCodeValidation},
		{"no fields", map[string]any{"node_id": "n1"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleUpdateNode(context.Background(), buildRequest("flowdesk.update_node", tc.args))
			require.NoError(t, err)
			require.True(t, result.IsError)
			if tc.code != "" {
				assert.Equal(t, tc.code, errorCode(t, result))
			}
		})
	}
}

func TestDeleteNodeTool(t *testing.T) {
	s, e, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleDeleteNode(context.Background(), buildRequest("flowdesk.delete_node", map[string]any{"node_id": "n1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	d := e.Diagram()
	assert.Len(t, d.Nodes, 1)
	assert.Empty(t, d.Edges, "edges touching the node go with it")

	result, err = s.handleDeleteNode(context.Background(), buildRequest("flowdesk.delete_node", map[string]any{"node_id": "n1"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Equal(t, schema.ErrCodeNotFound, errorCode(t, result))
}

func TestConnectTool(t *testing.T) {
	s, e, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleConnect(context.Background(), buildRequest("flowdesk.connect", map[string]any{
		"source": "n2", "target": "n1", "type": "CONDITIONAL", "label": "rejected",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var edge diagram.Edge
	unmarshalResult(t, result, &edge)
	assert.Equal(t, diagram.EdgeConditional, edge.Type)
	assert.Equal(t, "rejected", edge.Label)

	// Same connection again is a duplicate; the session must not stay pending.
	result, err = s.handleConnect(context.Background(), buildRequest("flowdesk.connect", map[string]any{
		"source": "n2", "target": "n1", "type": "CONDITIONAL",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Nil(t, e.State().Pending)

	result, err = s.handleConnect(context.Background(), buildRequest("flowdesk.connect", map[string]any{"source": "n1", "target": "n1"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Equal(t, schema.ErrCodeInvalidConnection, errorCode(t, result))
}

func TestValidateTool(t *testing.T) {
	s, _, _ := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleValidate(context.Background(), buildRequest("flowdesk.validate", nil))
	require.NoError(t, err)
	var body struct {
		Valid  bool                     `json:"valid"`
		Errors []schema.ValidationIssue `json:"errors"`
	}
	unmarshalResult(t, result, &body)
	assert.True(t, body.Valid)

	result, err = s.handleValidate(context.Background(), buildRequest("flowdesk.validate", map[string]any{"readiness": true}))
	require.NoError(t, err)
	body.Errors = nil
	unmarshalResult(t, result, &body)
	assert.False(t, body.Valid)
	require.NotEmpty(t, body.Errors)
	assert.Equal(t, schema.IssueMissingExecForm, body.Errors[0].Code)
}

func TestSaveTool(t *testing.T) {
	s, e, saver := newTestServer(t, schema.FlowStatusDraft)

	result, err := s.handleSave(context.Background(), buildRequest("flowdesk.save", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	assert.Equal(t, 1, saver.calls)
	assert.Len(t, saver.req.Nodes, 2)
	assert.False(t, e.Dirty())

	saver.err = errors.New("connection refused")
	require.NoError(t, e.Select(context.Background(), "n1"))
	_, err = e.AddNodeFromPanel(context.Background())
	require.NoError(t, err)
	result, err = s.handleSave(context.Background(), buildRequest("flowdesk.save", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, e.Dirty())
}

func TestToolsOnReadOnlyFlow(t *testing.T) {
	s, _, saver := newTestServer(t, schema.FlowStatusEffective)

	result, err := s.handleAddNode(context.Background(), buildRequest("flowdesk.add_node", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Equal(t, schema.ErrCodeReadOnly, errorCode(t, result))

	result, err = s.handleSave(context.Background(), buildRequest("flowdesk.save", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Zero(t, saver.calls)

	result, err = s.handleRender(context.Background(), buildRequest("flowdesk.render", map[string]any{"format": "ascii"}))
	require.NoError(t, err)
	assert.False(t, result.IsError, "reading is always allowed")
}

type recordingNotifier struct {
	mu     sync.Mutex
	agents []string
	kinds  []string
}

func (r *recordingNotifier) Notify(_ context.Context, agentID string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, agentID)
	data, _ := payload["data"].(map[string]any)
	kind, _ := data["kind"].(string)
	r.kinds = append(r.kinds, kind)
	return nil
}

func (r *recordingNotifier) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

func TestNotifyAll(t *testing.T) {
	s, _, _ := newTestServer(t, schema.FlowStatusDraft)
	rec := &recordingNotifier{}
	s.notifier = rec
	s.sessions.Register("agent-1", "session-1")
	s.sessions.Register("agent-2", "session-2")

	s.notifyAll(context.Background(), schema.EditorEvent{FlowID: "f1", Kind: schema.EventFlowSaved, Payload: json.RawMessage(`{"nodes":2}`)})
	assert.Equal(t, []string{"agent-1", "agent-2"}, rec.agents)
	assert.Equal(t, []string{schema.EventFlowSaved, schema.EventFlowSaved}, rec.kinds)
}

func TestForwardRelaysHubEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	flow := schema.Flow{ID: "f1", Status: schema.FlowStatusDraft, DiagramJSON: sampleDiagram}
	e := editor.New(schema.FlowDetail{Flow: flow}, editor.Options{Editable: true, IDs: &editor.Sequence{}, Hub: hub})
	s := NewFlowdeskServer(FlowdeskServerDeps{Editor: e, Hub: hub})
	rec := &recordingNotifier{}
	s.notifier = rec
	s.sessions.Register("agent-1", "session-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Forward(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Select(ctx, "n1"))
	require.NoError(t, e.DeleteNode(ctx, "n2"))

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []string{schema.EventNodeDeleted}, rec.seen(), "selection is not forwarded")
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

func errorCode(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	unmarshalResult(t, result, &body)
	return body.Error.Code
}
