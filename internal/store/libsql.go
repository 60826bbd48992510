package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowdesk/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowdesk.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	if !strings.HasPrefix(dbPath, "file:") && !strings.Contains(dbPath, "://") {
		dbPath = "file:" + dbPath
	}
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Drafts ---

// SaveDraft inserts or replaces the draft for draft.FlowID. CreatedAt is
// preserved across updates.
func (s *LibSQLStore) SaveDraft(ctx context.Context, draft *Draft) error {
	if draft.FlowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "draft flow id is required")
	}
	flowJSON, err := json.Marshal(draft.Flow)
	if err != nil {
		return fmt.Errorf("marshal draft flow: %w", err)
	}
	nodes := draft.Nodes
	if nodes == nil {
		nodes = []schema.FlowNode{}
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("marshal draft nodes: %w", err)
	}
	now := time.Now().UTC()
	draft.CreatedAt = timeOrNow(draft.CreatedAt)
	draft.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (flow_id, base_status, flow_json, nodes_json, diagram_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(flow_id) DO UPDATE SET base_status=excluded.base_status, flow_json=excluded.flow_json,
		   nodes_json=excluded.nodes_json, diagram_json=excluded.diagram_json, updated_at=excluded.updated_at`,
		draft.FlowID, string(draft.BaseStatus), string(flowJSON), string(nodesJSON), draft.DiagramJSON,
		draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		return storeError("save draft", err)
	}
	return nil
}

func (s *LibSQLStore) GetDraft(ctx context.Context, flowID string) (*Draft, error) {
	d := &Draft{}
	var status, flowJSON, nodesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT flow_id, base_status, flow_json, nodes_json, diagram_json, created_at, updated_at
		 FROM drafts WHERE flow_id = ?`, flowID,
	).Scan(&d.FlowID, &status, &flowJSON, &nodesJSON, &d.DiagramJSON, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("draft", flowID)
	}
	if err != nil {
		return nil, storeError("get draft", err)
	}
	d.BaseStatus = schema.FlowStatus(status)
	if err := json.Unmarshal([]byte(flowJSON), &d.Flow); err != nil {
		return nil, fmt.Errorf("unmarshal draft flow: %w", err)
	}
	if err := json.Unmarshal([]byte(nodesJSON), &d.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal draft nodes: %w", err)
	}
	if d.Nodes == nil {
		d.Nodes = []schema.FlowNode{}
	}
	return d, nil
}

// ListDrafts returns draft summaries, most recently updated first.
func (s *LibSQLStore) ListDrafts(ctx context.Context, filter DraftFilter) ([]*DraftSummary, error) {
	query := `SELECT d.flow_id, COALESCE(json_extract(d.flow_json, '$.title'), ''), d.base_status,
		COALESCE(json_array_length(d.nodes_json), 0),
		(SELECT COUNT(*) FROM editor_events e WHERE e.flow_id = d.flow_id), d.updated_at
		FROM drafts d`
	var args []any
	if filter.UpdatedBefore != nil {
		query += " WHERE d.updated_at < ?"
		args = append(args, *filter.UpdatedBefore)
	}
	query += " ORDER BY d.updated_at DESC, d.flow_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list drafts", err)
	}
	defer rows.Close()

	var out []*DraftSummary
	for rows.Next() {
		ds := &DraftSummary{}
		var status string
		if err := rows.Scan(&ds.FlowID, &ds.Title, &status, &ds.NodeCount, &ds.Events, &ds.UpdatedAt); err != nil {
			return nil, storeError("scan draft", err)
		}
		ds.BaseStatus = schema.FlowStatus(status)
		out = append(out, ds)
	}
	return out, rows.Err()
}

// DeleteDraft removes the draft and its event log.
func (s *LibSQLStore) DeleteDraft(ctx context.Context, flowID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin delete draft", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE flow_id = ?`, flowID)
	if err != nil {
		return storeError("delete draft", err)
	}
	if err := checkRowsAffected(res, "draft", flowID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM editor_events WHERE flow_id = ?`, flowID); err != nil {
		return storeError("delete draft events", err)
	}
	return tx.Commit()
}

// PruneDrafts deletes drafts last updated before the cutoff, together with
// their events, and returns the pruned flow ids.
func (s *LibSQLStore) PruneDrafts(ctx context.Context, before time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin prune", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT flow_id FROM drafts WHERE updated_at < ? ORDER BY flow_id`, before)
	if err != nil {
		return nil, storeError("select stale drafts", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, storeError("scan stale draft", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeError("select stale drafts", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM editor_events WHERE flow_id = ?`, id); err != nil {
			return nil, storeError("prune events", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE flow_id = ?`, id); err != nil {
			return nil, storeError("prune draft", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("commit prune", err)
	}
	return ids, nil
}

// --- Version cache ---

// CacheVersions upserts fetched version snapshots. Versions are immutable
// on the backend so existing rows are simply overwritten.
func (s *LibSQLStore) CacheVersions(ctx context.Context, versions []schema.FlowVersion) error {
	if len(versions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin cache versions", err)
	}
	defer tx.Rollback()

	for _, v := range versions {
		if v.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, "version id is required")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO versions (id, flow_id, snapshot_json, created_by, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET flow_id=excluded.flow_id, snapshot_json=excluded.snapshot_json,
			   created_by=excluded.created_by, created_at=excluded.created_at`,
			v.ID, v.FlowID, v.SnapshotJSON, v.CreatedBy, timeOrNow(v.CreatedAt),
		)
		if err != nil {
			return storeError("cache version", err)
		}
	}
	return tx.Commit()
}

// ListCachedVersions returns the cached versions of a flow, newest first.
func (s *LibSQLStore) ListCachedVersions(ctx context.Context, flowID string) ([]schema.FlowVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flow_id, snapshot_json, created_by, created_at FROM versions
		 WHERE flow_id = ? ORDER BY created_at DESC, id DESC`, flowID)
	if err != nil {
		return nil, storeError("list versions", err)
	}
	defer rows.Close()

	var out []schema.FlowVersion
	for rows.Next() {
		var v schema.FlowVersion
		if err := rows.Scan(&v.ID, &v.FlowID, &v.SnapshotJSON, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, storeError("scan version", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) GetCachedVersion(ctx context.Context, id string) (*schema.FlowVersion, error) {
	v := &schema.FlowVersion{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flow_id, snapshot_json, created_by, created_at FROM versions WHERE id = ?`, id,
	).Scan(&v.ID, &v.FlowID, &v.SnapshotJSON, &v.CreatedBy, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("version", id)
	}
	if err != nil {
		return nil, storeError("get version", err)
	}
	return v, nil
}

// --- Credentials ---

func (s *LibSQLStore) PutCredential(ctx context.Context, name string, ciphertext, nonce []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, ciphertext, nonce, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET ciphertext=excluded.ciphertext, nonce=excluded.nonce, updated_at=excluded.updated_at`,
		name, ciphertext, nonce, time.Now().UTC(),
	)
	if err != nil {
		return storeError("put credential", err)
	}
	return nil
}

func (s *LibSQLStore) GetCredential(ctx context.Context, name string) ([]byte, []byte, error) {
	var ciphertext, nonce []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT ciphertext, nonce FROM credentials WHERE name = ?`, name,
	).Scan(&ciphertext, &nonce)
	if err == sql.ErrNoRows {
		return nil, nil, storeNotFound("credential", name)
	}
	if err != nil {
		return nil, nil, storeError("get credential", err)
	}
	return ciphertext, nonce, nil
}

func (s *LibSQLStore) DeleteCredential(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, name)
	if err != nil {
		return storeError("delete credential", err)
	}
	return checkRowsAffected(res, "credential", name)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowdeskError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.FlowdeskError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
