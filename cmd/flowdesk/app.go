package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/flowdesk/internal/client"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/logging"
	"github.com/rendis/flowdesk/internal/secrets"
	"github.com/rendis/flowdesk/internal/session"
	"github.com/rendis/flowdesk/internal/store"
	"github.com/rendis/flowdesk/pkg/schema"
)

// app is the wired process: configuration, logger, local store, session
// manager and API client.
type app struct {
	cfg      Config
	logger   *slog.Logger
	store    *store.LibSQLStore
	sessions *session.Manager
	api      *client.Client
}

// config loads the layered configuration and applies the global flags.
func (c *cli) config() (Config, error) {
	path := c.flags.configPath
	if path == "" {
		path = settingsPath()
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return cfg, err
	}
	if c.flags.apiURL != "" {
		cfg.APIBaseURL = c.flags.apiURL
	}
	if c.flags.dbPath != "" {
		cfg.DBPath = c.flags.dbPath
	}
	if c.flags.logLevel != "" {
		cfg.LogLevel = c.flags.logLevel
	}
	if c.flags.logFormat != "" {
		cfg.LogFormat = c.flags.logFormat
	}
	if c.flags.timeout > 0 {
		cfg.RequestTimeout = duration(c.flags.timeout)
	}
	return cfg, nil
}

// open wires the app on first use. Commands that only read local files
// never call it.
func (c *cli) open(ctx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
	}

	key, err := secrets.LoadOrCreateKey(keyPath())
	if err != nil {
		st.Close()
		return nil, err
	}
	vault, err := secrets.NewAESVault(st, secrets.VaultConfig{MasterKey: key})
	if err != nil {
		st.Close()
		return nil, err
	}
	sessions := session.NewManager(vault, logger)

	api := client.New(cfg.APIBaseURL,
		client.WithTimeout(cfg.RequestTimeout.Std()),
		client.WithTokenSource(sessions),
		client.WithLogger(logger),
	)

	c.app = &app{cfg: cfg, logger: logger, store: st, sessions: sessions, api: api}
	return c.app, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.store.Close()
	c.app = nil
	return err
}

// currentSession returns the signed-in session, or nil with a warning when
// signed out so that read-only commands keep working.
func (a *app) currentSession(ctx context.Context) *session.Session {
	s, err := a.sessions.Current(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "continuing read-only", slog.String("reason", err.Error()))
		return nil
	}
	return s
}

// loadFlow fetches a flow and its local draft, if one still applies. When
// the backend cannot be reached the draft stands in for the flow.
func (a *app) loadFlow(ctx context.Context, flowID string) (schema.FlowDetail, *store.Draft, error) {
	detail, err := a.api.GetFlow(ctx, flowID)
	draft, derr := a.store.GetDraft(ctx, flowID)
	if derr != nil && !schema.IsCode(derr, schema.ErrCodeNotFound) {
		return schema.FlowDetail{}, nil, derr
	}
	if err != nil {
		var tErr *client.TransportError
		if draft != nil && errors.As(err, &tErr) {
			a.logger.WarnContext(ctx, "backend unreachable, using local draft", slog.String("flow_id", flowID))
			return draft.Detail(), draft, nil
		}
		return schema.FlowDetail{}, nil, err
	}
	if draft != nil && draft.BaseStatus != detail.Flow.Status {
		// The flow moved on since the draft was taken; the draft can no
		// longer be saved.
		a.logger.WarnContext(ctx, "discarding stale draft",
			slog.String("flow_id", flowID),
			slog.String("draft_status", string(draft.BaseStatus)),
			slog.String("flow_status", string(detail.Flow.Status)))
		if err := a.store.DeleteDraft(ctx, flowID); err != nil {
			return schema.FlowDetail{}, nil, err
		}
		draft = nil
	}
	return *detail, draft, nil
}

// openEditor opens an editing session on a flow. A matching local draft is
// resumed; edit rights follow the signed-in session.
func (a *app) openEditor(ctx context.Context, flowID string, hub editor.Publisher) (*editor.Editor, *session.Session, error) {
	detail, draft, err := a.loadFlow(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}
	sess := a.currentSession(ctx)
	opts := editor.Options{
		Editable: session.AffordancesFor(sess, detail.Flow).CanEdit,
		Events:   a.store,
		Hub:      hub,
		Drafts:   a.store,
		Logger:   a.logger,
	}
	if draft != nil && opts.Editable {
		a.logger.InfoContext(ctx, "resuming local draft", slog.String("flow_id", flowID), slog.Time("updated_at", draft.UpdatedAt))
		return editor.Resume(draft, opts), sess, nil
	}
	return editor.New(detail, opts), sess, nil
}
