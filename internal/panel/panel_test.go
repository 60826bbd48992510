package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowdesk/internal/client"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/session"
	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/pkg/schema"
)

const twoStepDiagram = `{"nodes":[{"id":"n1","label":"Collect","x":0,"y":0},{"id":"n2","label":"Approve","x":220,"y":0}],` +
	`"edges":[{"id":"e1","source":"n1","target":"n2","type":"SEQUENTIAL"}]}`

type fakeBackend struct {
	mu        sync.Mutex
	flow      schema.Flow
	nodes     []schema.FlowNode
	saves     int
	saveErr   error
	versions  []schema.FlowVersion
	listErr   error
	submitted bool
}

func (b *fakeBackend) UpdateFlow(_ context.Context, flowID string, req schema.UpdateFlowRequest) (*schema.FlowDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	b.flow.DiagramJSON = req.DiagramJSON
	b.nodes = req.Nodes
	return &schema.FlowDetail{Flow: b.flow, Nodes: b.nodes}, nil
}

func (b *fakeBackend) GetFlow(_ context.Context, flowID string) (*schema.FlowDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &schema.FlowDetail{Flow: b.flow, Nodes: b.nodes}, nil
}

func (b *fakeBackend) SubmitReview(_ context.Context, flowID string) (*schema.Flow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = true
	b.flow.Status = schema.FlowStatusInReview
	return &b.flow, nil
}

func (b *fakeBackend) Publish(_ context.Context, flowID string) (*schema.Flow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flow.Status = schema.FlowStatusEffective
	return &b.flow, nil
}

func (b *fakeBackend) ListVersions(_ context.Context, flowID string) ([]schema.FlowVersion, error) {
	return b.versions, b.listErr
}

type memVersions struct {
	cached []schema.FlowVersion
}

func (m *memVersions) CacheVersions(_ context.Context, versions []schema.FlowVersion) error {
	m.cached = append(m.cached, versions...)
	return nil
}

func (m *memVersions) ListCachedVersions(_ context.Context, flowID string) ([]schema.FlowVersion, error) {
	return m.cached, nil
}

type fixture struct {
	srv     *PanelServer
	handler http.Handler
	editor  *editor.Editor
	backend *fakeBackend
	hub     *streaming.MemoryHub
	cache   *memVersions
}

func draftFlow() schema.Flow {
	return schema.Flow{ID: "f1", FlowNo: "FL-1", Title: "Onboarding", OwnerID: "u1", Status: schema.FlowStatusDraft, DiagramJSON: twoStepDiagram}
}

func newFixture(t *testing.T, flow schema.Flow) *fixture {
	t.Helper()
	hub := streaming.NewMemoryHub()
	sess := &session.Session{UserID: "u1", Email: "owner@example.com", Role: schema.RoleUser}
	aff := session.AffordancesFor(sess, flow)

	e := editor.New(schema.FlowDetail{Flow: flow}, editor.Options{
		Editable: aff.CanEdit,
		IDs:      &editor.Sequence{},
		Hub:      hub,
	})
	v, err := validation.NewDiagramValidator()
	require.NoError(t, err)

	backend := &fakeBackend{flow: flow}
	cache := &memVersions{}
	srv := NewPanelServer(PanelDeps{
		Editor:    e,
		Backend:   backend,
		Hub:       hub,
		Validator: v,
		Session:   sess,
		Versions:  cache,
	})
	return &fixture{srv: srv, handler: srv.Handler(), editor: e, backend: backend, hub: hub, cache: cache}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody[map[string]apiError](t, rec)
	return body["error"].Code
}

func TestPanel_State(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Nodes       []schema.FlowNode   `json:"nodes"`
		Editable    bool                `json:"editable"`
		Dirty       bool                `json:"dirty"`
		Affordances session.Affordances `json:"affordances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Nodes, 2, "records are created for diagram nodes on load")
	assert.True(t, body.Editable)
	assert.True(t, body.Dirty)
	assert.Equal(t, session.Affordances{CanEdit: true, CanSubmit: true}, body.Affordances)
}

func TestPanel_RequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, draftFlow())
	req := httptest.NewRequest(http.MethodGet, "/api/canvas", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestPanel_NodeLifecycle(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPost, "/api/nodes", `{"from":"panel"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[schema.FlowNode](t, rec)
	assert.Equal(t, "New node 3", created.Name)
	assert.Equal(t, created.ID, f.editor.Selected())

	rec = f.do(t, http.MethodPut, "/api/nodes/"+created.ID,
		`{"name":"Sign contract","exec_form":"DOC_REVIEW","duration_min":"1","duration_max":"3","duration_unit":"DAY","raci":{"R":["Legal"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Sign contract", f.editor.Diagram().Nodes[2].Label)

	rec = f.do(t, http.MethodGet, "/api/nodes/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[nodeResponse](t, rec)
	assert.Equal(t, "1", got.Form.DurationMin)
	assert.NotEmpty(t, got.Sections)

	rec = f.do(t, http.MethodDelete, "/api/nodes/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := f.editor.Node(created.ID)
	assert.False(t, ok)

	rec = f.do(t, http.MethodDelete, "/api/nodes/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, schema.ErrCodeNotFound, errorCode(t, rec))
}

func TestPanel_UpdateNodeFieldErrors(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPut, "/api/nodes/n1", `{"name":"","exec_form":"","duration_min":"5","duration_max":"2"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[map[string]apiError](t, rec)
	assert.Equal(t, schema.ErrCodeValidation, body["error"].Code)
	assert.Contains(t, body["error"].Fields, "name")
	assert.Contains(t, body["error"].Fields, "exec_form")
	assert.Contains(t, body["error"].Fields, "duration")
}

func TestPanel_ReadOnlyFlow(t *testing.T) {
	flow := draftFlow()
	flow.Status = schema.FlowStatusEffective
	f := newFixture(t, flow)

	rec := f.do(t, http.MethodPost, "/api/nodes", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, schema.ErrCodeReadOnly, errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/save", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/select", `{"id":"n1"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "selection works on read-only flows")
}

func TestPanel_SelectionStep(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPost, "/api/select", `{"id":"n1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/select/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["moved"])
	assert.Equal(t, "2 / 2", body["progress"])

	rec = f.do(t, http.MethodPost, "/api/select/next", "")
	body = decodeBody[map[string]any](t, rec)
	assert.Equal(t, false, body["moved"])

	rec = f.do(t, http.MethodPost, "/api/select/sideways", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanel_ConnectFlow(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPost, "/api/connect", `{"source":"n2","target":"n1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/connect/confirm", `{"type":"CONDITIONAL","label":"rework"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	edge := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "CONDITIONAL", edge["type"])
	assert.Len(t, f.editor.Diagram().Edges, 2)

	rec = f.do(t, http.MethodPost, "/api/connect", `{"source":"n1","target":"n1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, schema.ErrCodeInvalidConnection, errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/connect/cancel", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPanel_ApplyChanges(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPost, "/api/changes", `[{"type":"position","id":"n2","position":{"x":300.4,"y":80}}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"moved": true}, decodeBody[map[string]bool](t, rec))
	assert.Equal(t, 300.0, f.editor.Diagram().Nodes[1].X)

	rec = f.do(t, http.MethodPost, "/api/changes", `[{"type":"select","id":"n2","selected":true}]`)
	assert.Equal(t, map[string]bool{"moved": false}, decodeBody[map[string]bool](t, rec))
}

func TestPanel_Import(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPost, "/api/import", `{"diagram_json":"{\"nodes\":[{\"id\":1}]}"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, f.editor.Diagram().Nodes, 2, "rejected import leaves the diagram alone")

	rec = f.do(t, http.MethodPost, "/api/import",
		`{"diagram_json":"{\"nodes\":[{\"id\":\"a\",\"label\":\"Only\",\"x\":0,\"y\":0}],\"edges\":[]}"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.editor.Diagram().Nodes, 1)
	_, ok := f.editor.Node("a")
	assert.True(t, ok)
}

func TestPanel_Validate(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodGet, "/api/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["valid"])

	rec = f.do(t, http.MethodGet, "/api/validate?readiness=1", "")
	body := decodeBody[validateResponse](t, rec)
	assert.False(t, body.Valid, "new records have no execution form")
	assert.True(t, body.HasCode(schema.IssueMissingExecForm))
}

func TestPanel_SaveAndSubmit(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodPost, "/api/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "dirty sessions cannot be submitted")

	rec = f.do(t, http.MethodPost, "/api/save", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.backend.saves)
	assert.False(t, f.editor.Dirty())

	rec = f.do(t, http.MethodPost, "/api/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, "records still miss an execution form")
	assert.False(t, f.backend.submitted)

	for _, id := range []string{"n1", "n2"} {
		rec = f.do(t, http.MethodPut, "/api/nodes/"+id, `{"name":"Step `+id+`","exec_form":"SYSTEM_APPROVAL"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/api/save", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ch, cancel, err := f.hub.Subscribe(context.Background(), streaming.EventFilter{FlowID: "f1", Kinds: []string{schema.EventFlowTransitioned}})
	require.NoError(t, err)
	defer cancel()

	rec = f.do(t, http.MethodPost, "/api/submit", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.backend.submitted)
	assert.False(t, f.editor.Editable(), "reviewed flows are read-only")
	assert.Equal(t, schema.FlowStatusInReview, f.editor.State().Flow.Status)

	select {
	case ev := <-ch:
		assert.Equal(t, schema.EventFlowTransitioned, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no transition event published")
	}

	rec = f.do(t, http.MethodPost, "/api/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, schema.ErrCodeInvalidTransition, errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/publish", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, schema.FlowStatusEffective, f.editor.State().Flow.Status)
}

func TestPanel_SaveBackendError(t *testing.T) {
	f := newFixture(t, draftFlow())
	f.backend.saveErr = &client.APIError{
		Code:       schema.ErrCodeValidation,
		Message:    "invalid node",
		Fields:     map[string]string{"flow_nodes[0].exec_form": "invalid_enum"},
		StatusCode: http.StatusBadRequest,
	}

	rec := f.do(t, http.MethodPost, "/api/save", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]apiError](t, rec)
	assert.Equal(t, "invalid_enum", body["error"].Fields["flow_nodes[0].exec_form"])
	assert.True(t, f.editor.Dirty())
}

func TestPanel_FlowPage(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "Onboarding")
	assert.Contains(t, html, `data-id="n1"`)
	assert.Contains(t, html, "Submit for review")
	assert.NotContains(t, html, ">Publish<")
}

func TestPanel_FlowPageEmptyReadOnly(t *testing.T) {
	flow := draftFlow()
	flow.Status = schema.FlowStatusEffective
	flow.DiagramJSON = ""
	f := newFixture(t, flow)

	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No flow diagram yet")
}

func TestPanel_NodePages(t *testing.T) {
	f := newFixture(t, draftFlow())

	rec := f.do(t, http.MethodGet, "/nodes/n1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 / 2")
	assert.Contains(t, rec.Body.String(), `href="/nodes/n2"`)
	assert.Equal(t, "n1", f.editor.Selected())

	rec = f.do(t, http.MethodGet, "/nodes/n1/edit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="raci_R"`)

	form := url.Values{
		"name":          {"Collect documents"},
		"exec_form":     {"EMAIL_CONFIRM"},
		"duration_min":  {"2"},
		"duration_unit": {"DAY"},
		"raci_R":        {"HR, Manager, HR"},
		"subtasks":      {"Scan ID\r\n\r\nSign NDA"},
	}
	req := httptest.NewRequest(http.MethodPost, "/nodes/n1/edit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	node, ok := f.editor.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "Collect documents", node.Name)
	assert.Equal(t, []string{"HR", "Manager"}, node.RACI[schema.RACIResponsible])
	assert.Equal(t, []string{"Scan ID", "Sign NDA"}, node.Subtasks)

	form.Set("duration_min", "abc")
	req = httptest.NewRequest(http.MethodPost, "/nodes/n1/edit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be a number")

	rec = f.do(t, http.MethodGet, "/nodes/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanel_VersionsFallBackToCache(t *testing.T) {
	f := newFixture(t, draftFlow())
	f.backend.versions = []schema.FlowVersion{{ID: "v-0001", FlowID: "f1", CreatedBy: "alice", CreatedAt: time.Now()}}

	rec := f.do(t, http.MethodGet, "/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	require.Len(t, f.cache.cached, 1)

	f.backend.listErr = &client.TransportError{Method: http.MethodGet, URL: "/flows/f1/versions", Err: context.DeadlineExceeded}
	rec = f.do(t, http.MethodGet, "/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Showing cached versions")
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestPanel_SSE(t *testing.T) {
	f := newFixture(t, draftFlow())
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.hub.Subscribers() > 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, f.editor.Select(ctx, "n2"))

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event: "+schema.EventNodeSelected, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
}
