package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/forms"
	"github.com/rendis/flowdesk/internal/logging"
	"github.com/rendis/flowdesk/internal/session"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/internal/view"
	"github.com/rendis/flowdesk/pkg/schema"
)

type stateResponse struct {
	editor.State
	Affordances session.Affordances `json:"affordances"`
	Progress    string              `json:"progress,omitempty"`
	MinDays     float64             `json:"total_duration_min_days"`
	MaxDays     float64             `json:"total_duration_max_days"`
	Saving      bool                `json:"saving"`
}

type nodeResponse struct {
	Node     schema.FlowNode `json:"node"`
	Form     forms.NodeForm  `json:"form"`
	Sections []forms.Section `json:"sections"`
}

type addNodeRequest struct {
	// From is "panel" (default) or "diagram".
	From string `json:"from"`
}

type selectRequest struct {
	ID string `json:"id"`
}

type connectRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type confirmRequest struct {
	Type  diagram.EdgeType `json:"type"`
	Label string           `json:"label"`
}

type importRequest struct {
	DiagramJSON string `json:"diagram_json"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
	*schema.ValidationResult
}

// --- State ---

func (s *PanelServer) handleState(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	st := e.State()
	minDays, maxDays := editor.Totals(st.Nodes)
	writeJSON(w, http.StatusOK, stateResponse{
		State:       st,
		Affordances: s.affordances(st.Flow),
		Progress:    e.Progress(),
		MinDays:     minDays,
		MaxDays:     maxDays,
		Saving:      e.Saving(),
	})
}

func (s *PanelServer) handleCanvas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Editor.Canvas())
}

// --- Nodes ---

func (s *PanelServer) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node, ok := s.deps.Editor.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, schema.ErrCodeNotFound, "node "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, nodeResponse{
		Node:     node,
		Form:     forms.FromNode(node),
		Sections: forms.ReadView(node),
	})
}

func (s *PanelServer) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
	}

	var (
		node schema.FlowNode
		err  error
	)
	switch req.From {
	case "", "panel":
		node, err = s.deps.Editor.AddNodeFromPanel(r.Context())
	case "diagram":
		node, err = s.deps.Editor.AddNodeFromDiagram(r.Context())
	default:
		writeError(w, http.StatusBadRequest, schema.ErrCodeValidation, "from must be panel or diagram")
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *PanelServer) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	id := r.PathValue("id")
	base, ok := e.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, schema.ErrCodeNotFound, "node "+id+" not found")
		return
	}
	var form forms.NodeForm
	if err := decodeJSON(r, &form); err != nil {
		writeErr(w, err)
		return
	}
	form.ID = id

	node, err := form.ToNode(base)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := e.UpdateNode(r.Context(), node); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *PanelServer) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Editor.DeleteNode(r.Context(), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleDeleteSelected(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Editor.DeleteSelected(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Selection ---

func (s *PanelServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	e := s.deps.Editor
	if err := e.Select(r.Context(), req.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": e.Selected(), "progress": e.Progress()})
}

func (s *PanelServer) handleStep(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	var moved bool
	switch r.PathValue("dir") {
	case "prev":
		moved = e.Prev(r.Context())
	case "next":
		moved = e.Next(r.Context())
	default:
		writeError(w, http.StatusNotFound, schema.ErrCodeNotFound, "unknown direction "+r.PathValue("dir"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": e.Selected(), "moved": moved, "progress": e.Progress()})
}

// --- Connections ---

func (s *PanelServer) handleBeginConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.deps.Editor.BeginConnection(r.Context(), req.Source, req.Target); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"pending":    editor.PendingConnection{Source: req.Source, Target: req.Target},
		"edge_types": diagram.EdgeTypes,
	})
}

func (s *PanelServer) handleConfirmConnect(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Type == "" {
		req.Type = diagram.EdgeTypes[0]
	}
	edge, err := s.deps.Editor.ConfirmConnection(r.Context(), req.Type, req.Label)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.ToEdgeView(edge))
}

func (s *PanelServer) handleCancelConnect(w http.ResponseWriter, r *http.Request) {
	s.deps.Editor.CancelConnection(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// --- Diagram ---

func (s *PanelServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	var changes []view.NodeChange
	if err := decodeJSON(r, &changes); err != nil {
		writeErr(w, err)
		return
	}
	moved, err := s.deps.Editor.ApplyPositions(r.Context(), changes)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

// handleImport replaces the diagram with pasted JSON. A document that fails
// the schema is refused as a whole; structural findings are returned as the
// import's validation result.
func (s *PanelServer) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	result := &schema.ValidationResult{}
	if s.deps.Validator != nil {
		result = s.deps.Validator.Validate(req.DiagramJSON)
		if result.HasCode(schema.IssueSchema) {
			writeJSON(w, http.StatusUnprocessableEntity, validateResponse{Valid: false, ValidationResult: result})
			return
		}
	}
	if err := s.deps.Editor.ImportJSON(r.Context(), req.DiagramJSON); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: result.Valid(), ValidationResult: result})
}

// handleValidate checks the current diagram. With ?readiness=1 it also
// reports what blocks a review submission.
func (s *PanelServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	var result *schema.ValidationResult
	if s.deps.Validator != nil {
		result = s.deps.Validator.Validate(diagram.Serialize(e.Diagram()))
	} else {
		result = e.Validate()
	}
	if r.URL.Query().Get("readiness") != "" {
		result = validation.ReviewReadiness(e.Detail())
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: result.Valid(), ValidationResult: result})
}

// --- Persistence and lifecycle ---

func (s *PanelServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backend == nil {
		writeError(w, http.StatusServiceUnavailable, schema.ErrCodeTransport, "no backend configured")
		return
	}
	e := s.deps.Editor
	if err := e.Save(r.Context(), s.deps.Backend); err != nil {
		writeErr(w, err)
		return
	}
	st := e.State()
	writeJSON(w, http.StatusOK, map[string]any{"flow": st.Flow, "dirty": st.Dirty})
}

func (s *PanelServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, schema.FlowStatusInReview, true, func(ctx context.Context, b Backend, id string) (*schema.Flow, error) {
		return b.SubmitReview(ctx, id)
	})
}

func (s *PanelServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, schema.FlowStatusEffective, false, func(ctx context.Context, b Backend, id string) (*schema.Flow, error) {
		return b.Publish(ctx, id)
	})
}

// transition moves the flow to status "to" on the backend. Unsaved edits
// are refused so that the reviewed version is the one on the server. On
// success the session is reloaded and switched to the new edit mode.
func (s *PanelServer) transition(w http.ResponseWriter, r *http.Request, to schema.FlowStatus, readiness bool,
	call func(ctx context.Context, b Backend, id string) (*schema.Flow, error)) {
	if s.deps.Backend == nil {
		writeError(w, http.StatusServiceUnavailable, schema.ErrCodeTransport, "no backend configured")
		return
	}
	e := s.deps.Editor
	st := e.State()
	flowID, from := st.Flow.ID, st.Flow.Status
	ctx := logging.WithFlowID(r.Context(), flowID)

	if st.Dirty {
		writeError(w, http.StatusConflict, schema.ErrCodeConflict, "save the flow before changing its status")
		return
	}
	if err := s.deps.Lifecycle.Check(flowID, from, to); err != nil {
		writeErr(w, err)
		return
	}
	if readiness {
		if res := validation.ReviewReadiness(e.Detail()); !res.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, validateResponse{Valid: false, ValidationResult: res})
			return
		}
	}

	if _, err := call(ctx, s.deps.Backend, flowID); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.deps.Lifecycle.Transition(ctx, flowID, from, to); err != nil {
		s.deps.Logger.WarnContext(ctx, "record flow transition", "error", err)
	}

	detail, err := s.deps.Backend.GetFlow(ctx, flowID)
	if err != nil {
		writeErr(w, err)
		return
	}
	aff := s.affordances(detail.Flow)
	e.SetEditable(aff.CanEdit)
	e.Reload(*detail)
	s.publishTransition(ctx, flowID, from, detail.Flow.Status)

	writeJSON(w, http.StatusOK, map[string]any{"flow": detail.Flow, "affordances": aff})
}

func (s *PanelServer) publishTransition(ctx context.Context, flowID string, from, to schema.FlowStatus) {
	if s.deps.Hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
	event := schema.EditorEvent{
		FlowID:    flowID,
		Kind:      schema.EventFlowTransitioned,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := s.deps.Hub.Publish(ctx, event); err != nil {
		s.deps.Logger.WarnContext(ctx, "publish flow transition", "error", err)
	}
}
