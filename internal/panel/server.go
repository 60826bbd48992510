// Package panel serves the local flow workbench: a browser view of one
// editing session with a JSON API and a live event stream.
package panel

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/forms"
	"github.com/rendis/flowdesk/internal/lifecycle"
	"github.com/rendis/flowdesk/internal/logging"
	"github.com/rendis/flowdesk/internal/session"
	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/pkg/schema"
)

//go:embed templates static
var content embed.FS

// Backend is the remote flow service; satisfied by client.Client.
type Backend interface {
	editor.Saver
	GetFlow(ctx context.Context, flowID string) (*schema.FlowDetail, error)
	SubmitReview(ctx context.Context, flowID string) (*schema.Flow, error)
	Publish(ctx context.Context, flowID string) (*schema.Flow, error)
	ListVersions(ctx context.Context, flowID string) ([]schema.FlowVersion, error)
}

// VersionCache keeps fetched versions for offline viewing; satisfied by store.Store.
type VersionCache interface {
	CacheVersions(ctx context.Context, versions []schema.FlowVersion) error
	ListCachedVersions(ctx context.Context, flowID string) ([]schema.FlowVersion, error)
}

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Editor    *editor.Editor
	Backend   Backend
	Hub       streaming.EventHub
	Validator validation.Validator
	Lifecycle *lifecycle.FlowFSM
	// Session decides which lifecycle controls are shown. Nil means none.
	Session  *session.Session
	Versions VersionCache
	Logger   *slog.Logger
}

// PanelServer serves the workbench.
type PanelServer struct {
	deps  PanelDeps
	pages map[string]*template.Template
}

// NewPanelServer creates a new PanelServer with parsed templates.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = lifecycle.NewFlowFSM(nil)
	}

	funcMap := template.FuncMap{
		"json":          toJSON,
		"timeAgo":       timeAgo,
		"statusBadge":   statusBadge,
		"statusLabel":   forms.StatusLabel,
		"execFormLabel": forms.ExecFormLabel,
		"unitLabel":     forms.DurationUnitLabel,
		"raciLabel":     forms.RACILabel,
		"joinValues":    forms.JoinValues,
		"truncate":      truncate,
	}

	base := template.Must(
		template.New("").Funcs(funcMap).ParseFS(content,
			"templates/base.html",
			"templates/partials/*.html",
		),
	)

	// Each page clones the shared set so that its {{define "content"}}
	// doesn't collide with others.
	pageFiles := []string{
		"flow.html",
		"node.html",
		"node_edit.html",
		"versions.html",
	}
	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &PanelServer{deps: deps, pages: pages}
}

// Handler returns the HTTP handler for the workbench routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleFlow)
	mux.HandleFunc("GET /nodes/{id}", s.handleNode)
	mux.HandleFunc("GET /nodes/{id}/edit", s.handleNodeEdit)
	mux.HandleFunc("POST /nodes/{id}/edit", s.handleNodeEditSubmit)
	mux.HandleFunc("GET /versions", s.handleVersions)

	// SSE.
	mux.HandleFunc("GET /sse/events", s.handleSSE)

	// API.
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/canvas", s.handleCanvas)
	mux.HandleFunc("GET /api/nodes/{id}", s.handleGetNode)
	mux.HandleFunc("POST /api/nodes", s.handleAddNode)
	mux.HandleFunc("PUT /api/nodes/{id}", s.handleUpdateNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", s.handleDeleteNode)
	mux.HandleFunc("DELETE /api/selection", s.handleDeleteSelected)
	mux.HandleFunc("POST /api/select", s.handleSelect)
	mux.HandleFunc("POST /api/select/{dir}", s.handleStep)
	mux.HandleFunc("POST /api/connect", s.handleBeginConnect)
	mux.HandleFunc("POST /api/connect/confirm", s.handleConfirmConnect)
	mux.HandleFunc("POST /api/connect/cancel", s.handleCancelConnect)
	mux.HandleFunc("POST /api/changes", s.handleChanges)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("POST /api/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/publish", s.handlePublish)

	return withRequestID(mux)
}

// withRequestID tags the request context with X-Request-ID, minting one
// when the caller sent none, so backend calls and logs share it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// affordances returns the lifecycle controls for the current flow.
func (s *PanelServer) affordances(f schema.Flow) session.Affordances {
	return session.AffordancesFor(s.deps.Session, f)
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
