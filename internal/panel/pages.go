package panel

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/forms"
	"github.com/rendis/flowdesk/internal/session"
	"github.com/rendis/flowdesk/pkg/schema"
)

// --- Page data types ---

type pageData struct {
	Title       string
	Active      string
	Flow        schema.Flow
	Affordances session.Affordances
	Editable    bool
	Dirty       bool
	Saving      bool
}

type flowData struct {
	pageData
	Canvas    svgCanvas
	Nodes     []schema.FlowNode
	Selected  string
	Pending   *editor.PendingConnection
	EdgeTypes []diagram.EdgeType
	MinDays   float64
	MaxDays   float64
	Issues    *schema.ValidationResult
}

type nodeData struct {
	pageData
	Node     schema.FlowNode
	Sections []forms.Section
	Progress string
	PrevID   string
	NextID   string
}

// raciField is one RACI column of the edit form.
type raciField struct {
	Key   schema.RACIKey
	Label string
	Value string
}

type nodeEditData struct {
	pageData
	Form      forms.NodeForm
	RACI      []raciField
	Subtasks  string
	Errors    forms.FieldErrors
	Messages  []string
	ExecForms []schema.ExecForm
	Units     []schema.DurationUnit
}

type versionsData struct {
	pageData
	Versions []schema.FlowVersion
	Cached   bool
	Notice   string
}

var durationUnits = []schema.DurationUnit{
	schema.DurationUnitMinute,
	schema.DurationUnitHour,
	schema.DurationUnitDay,
	schema.DurationUnitWeek,
}

func (s *PanelServer) page(title, active string) pageData {
	st := s.deps.Editor.State()
	return pageData{
		Title:       title,
		Active:      active,
		Flow:        st.Flow,
		Affordances: s.affordances(st.Flow),
		Editable:    st.Editable,
		Dirty:       st.Dirty,
		Saving:      s.deps.Editor.Saving(),
	}
}

// --- Page handlers ---

func (s *PanelServer) handleFlow(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	st := e.State()
	minDays, maxDays := editor.Totals(st.Nodes)

	data := flowData{
		pageData:  s.page(st.Flow.Title, "flow"),
		Canvas:    layoutSVG(e.Canvas()),
		Nodes:     editor.Ordered(st.Nodes),
		Selected:  st.Selected,
		Pending:   st.Pending,
		EdgeTypes: diagram.EdgeTypes,
		MinDays:   minDays,
		MaxDays:   maxDays,
		Issues:    e.Validate(),
	}
	s.renderPage(w, "flow.html", data)
}

func (s *PanelServer) handleNode(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	id := r.PathValue("id")
	if err := e.Select(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	node, ok := e.Node(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	data := nodeData{
		pageData: s.page(node.Name, "nodes"),
		Node:     node,
		Sections: forms.ReadView(node),
		Progress: e.Progress(),
	}
	ordered := editor.Ordered(e.State().Nodes)
	for i, n := range ordered {
		if n.ID != id {
			continue
		}
		if i > 0 {
			data.PrevID = ordered[i-1].ID
		}
		if i+1 < len(ordered) {
			data.NextID = ordered[i+1].ID
		}
		break
	}
	s.renderPage(w, "node.html", data)
}

func (s *PanelServer) handleNodeEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node, ok := s.deps.Editor.Node(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.renderEditForm(w, http.StatusOK, forms.FromNode(node), nil)
}

func (s *PanelServer) handleNodeEditSubmit(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	id := r.PathValue("id")
	base, ok := e.Node(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form := formFromValues(id, r)
	node, err := form.ToNode(base)
	if err != nil {
		s.renderEditForm(w, http.StatusUnprocessableEntity, form, fieldErrorsOf(err))
		return
	}
	if err := e.UpdateNode(r.Context(), node); err != nil {
		s.renderEditForm(w, statusFor(err), form, forms.FieldErrors{"node": err.Error()})
		return
	}
	http.Redirect(w, r, "/nodes/"+id, http.StatusSeeOther)
}

func (s *PanelServer) renderEditForm(w http.ResponseWriter, status int, form forms.NodeForm, errs forms.FieldErrors) {
	data := nodeEditData{
		pageData:  s.page("Edit "+form.Name, "nodes"),
		Form:      form,
		Subtasks:  strings.Join(form.Subtasks, "\n"),
		Errors:    errs,
		Messages:  errs.Messages(),
		ExecForms: schema.ExecForms,
		Units:     durationUnits,
	}
	for _, k := range schema.RACIKeys {
		data.RACI = append(data.RACI, raciField{Key: k, Label: forms.RACILabel(k), Value: forms.JoinValues(form.RACI[k])})
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	s.renderPage(w, "node_edit.html", data)
}

// formFromValues reads the edit form. RACI columns are comma separated and
// subtasks one per line; both go through the tag commit rules.
func formFromValues(id string, r *http.Request) forms.NodeForm {
	form := forms.NodeForm{
		ID:           id,
		NodeNo:       r.PostFormValue("node_no"),
		Name:         r.PostFormValue("name"),
		Intro:        r.PostFormValue("intro"),
		ExecForm:     r.PostFormValue("exec_form"),
		DurationMin:  r.PostFormValue("duration_min"),
		DurationMax:  r.PostFormValue("duration_max"),
		DurationUnit: r.PostFormValue("duration_unit"),
		RACI:         schema.RACI{},
		PrereqText:   r.PostFormValue("prereq_text"),
		OutputsText:  r.PostFormValue("outputs_text"),
		Subtasks:     []string{},
	}
	for _, k := range schema.RACIKeys {
		var values []string
		for _, part := range strings.Split(r.PostFormValue("raci_"+string(k)), ",") {
			values, _ = forms.Commit(values, part)
		}
		if len(values) > 0 {
			form.RACI[k] = values
		}
	}
	for _, line := range strings.Split(r.PostFormValue("subtasks"), "\n") {
		form.Subtasks, _ = forms.CommitList(form.Subtasks, strings.TrimRight(line, "\r"))
	}
	return form
}

// fieldErrorsOf recovers field errors from a VALIDATION_ERROR, falling back
// to a single form-level message.
func fieldErrorsOf(err error) forms.FieldErrors {
	var fe *schema.FlowdeskError
	if errors.As(err, &fe) {
		if fields, ok := fe.Details["fields"].(map[string]string); ok {
			return forms.FieldErrors(fields)
		}
	}
	return forms.FieldErrors{"node": err.Error()}
}

func (s *PanelServer) handleVersions(w http.ResponseWriter, r *http.Request) {
	e := s.deps.Editor
	flowID := e.FlowID()
	data := versionsData{pageData: s.page("Versions", "versions")}

	var err error
	if s.deps.Backend != nil {
		data.Versions, err = s.deps.Backend.ListVersions(r.Context(), flowID)
		if err == nil && s.deps.Versions != nil {
			if cerr := s.deps.Versions.CacheVersions(r.Context(), data.Versions); cerr != nil {
				s.deps.Logger.WarnContext(r.Context(), "cache versions", "error", cerr)
			}
		}
	}
	if (err != nil || s.deps.Backend == nil) && s.deps.Versions != nil {
		cached, cerr := s.deps.Versions.ListCachedVersions(r.Context(), flowID)
		if cerr == nil {
			data.Versions = cached
			data.Cached = true
		}
	}
	if err != nil {
		data.Notice = err.Error()
	}
	s.renderPage(w, "versions.html", data)
}
