package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowdesk/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	s, err := NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDetail() schema.FlowDetail {
	return schema.FlowDetail{
		Flow: schema.Flow{
			ID:          "f1",
			FlowNo:      "FL-001",
			Title:       "Vendor onboarding",
			OwnerID:     "u1",
			Status:      schema.FlowStatusDraft,
			DiagramJSON: `{"nodes":[{"id":"a","position":{"x":1,"y":2},"data":{"label":"Intake"}}],"edges":[]}`,
		},
		Nodes: []schema.FlowNode{
			{ID: "a", FlowID: "f1", Name: "Intake", ExecForm: schema.ExecFormDocReview,
				RACI: schema.RACI{schema.RACIResponsible: {"ops"}}, Subtasks: []string{"collect"}},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\n-- only comments;\nCREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT);\n")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE TABLE b (y INT)", stmts[1])
}

func TestSaveAndGetDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := DraftFromDetail(sampleDetail())
	require.NoError(t, s.SaveDraft(ctx, d))

	got, err := s.GetDraft(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, schema.FlowStatusDraft, got.BaseStatus)
	assert.Equal(t, "Vendor onboarding", got.Flow.Title)
	assert.Equal(t, d.DiagramJSON, got.DiagramJSON)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, []string{"ops"}, got.Nodes[0].RACI[schema.RACIResponsible])
	assert.Equal(t, []string{"collect"}, got.Nodes[0].Subtasks)

	detail := got.Detail()
	assert.Equal(t, d.DiagramJSON, detail.Flow.DiagramJSON)
}

func TestSaveDraftKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := DraftFromDetail(sampleDetail())
	require.NoError(t, s.SaveDraft(ctx, d))
	first, err := s.GetDraft(ctx, "f1")
	require.NoError(t, err)

	d.DiagramJSON = ""
	d.CreatedAt = time.Time{}
	require.NoError(t, s.SaveDraft(ctx, d))
	second, err := s.GetDraft(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "", second.DiagramJSON)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestSaveDraftRequiresFlowID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveDraft(context.Background(), &Draft{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestGetDraftNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDraft(context.Background(), "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestListDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, DraftFromDetail(sampleDetail())))
	other := sampleDetail()
	other.Flow.ID = "f2"
	other.Flow.Title = "Refunds"
	other.Nodes = nil
	require.NoError(t, s.SaveDraft(ctx, DraftFromDetail(other)))
	require.NoError(t, s.AppendEvent(ctx, &schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodeAdded}))

	drafts, err := s.ListDrafts(ctx, DraftFilter{})
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	byID := map[string]*DraftSummary{}
	for _, d := range drafts {
		byID[d.FlowID] = d
	}
	assert.Equal(t, "Vendor onboarding", byID["f1"].Title)
	assert.Equal(t, 1, byID["f1"].NodeCount)
	assert.Equal(t, int64(1), byID["f1"].Events)
	assert.Equal(t, 0, byID["f2"].NodeCount)

	limited, err := s.ListDrafts(ctx, DraftFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteDraftRemovesEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, DraftFromDetail(sampleDetail())))
	require.NoError(t, s.AppendEvent(ctx, &schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodeAdded}))

	require.NoError(t, s.DeleteDraft(ctx, "f1"))
	events, err := s.ListEvents(ctx, "f1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = s.DeleteDraft(ctx, "f1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestPruneDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, DraftFromDetail(sampleDetail())))
	require.NoError(t, s.AppendEvent(ctx, &schema.EditorEvent{FlowID: "f1", Kind: schema.EventNodeAdded}))

	pruned, err := s.PruneDrafts(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pruned)

	pruned, err = s.PruneDrafts(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, pruned)

	_, err = s.GetDraft(ctx, "f1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	events, err := s.ListEvents(ctx, "f1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestVersionCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	versions := []schema.FlowVersion{
		{ID: "v2", FlowID: "f1", SnapshotJSON: `{"flow":{"id":"f1"}}`, CreatedBy: "u1", CreatedAt: base.Add(time.Hour)},
		{ID: "v1", FlowID: "f1", SnapshotJSON: `{"flow":{"id":"f1"}}`, CreatedBy: "u1", CreatedAt: base},
		{ID: "x1", FlowID: "f2", SnapshotJSON: `{}`, CreatedAt: base},
	}
	require.NoError(t, s.CacheVersions(ctx, versions))
	require.NoError(t, s.CacheVersions(ctx, versions[:1]))

	got, err := s.ListCachedVersions(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].ID)
	assert.Equal(t, "v1", got[1].ID)

	v, err := s.GetCachedVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "u1", v.CreatedBy)

	_, err = s.GetCachedVersion(ctx, "nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = s.CacheVersions(ctx, []schema.FlowVersion{{FlowID: "f1"}})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutCredential(ctx, "session_token", []byte{1, 2, 3}, []byte{9}))
	require.NoError(t, s.PutCredential(ctx, "session_token", []byte{4, 5}, []byte{8}))

	ct, nonce, err := s.GetCredential(ctx, "session_token")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, ct)
	assert.Equal(t, []byte{8}, nonce)

	require.NoError(t, s.DeleteCredential(ctx, "session_token"))
	_, _, err = s.GetCredential(ctx, "session_token")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	assert.True(t, schema.IsCode(s.DeleteCredential(ctx, "session_token"), schema.ErrCodeNotFound))
}
