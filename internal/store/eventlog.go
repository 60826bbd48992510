package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/rendis/flowdesk/pkg/schema"
)

// AppendEvent appends an editor event with a monotonically increasing
// per-flow sequence. It satisfies lifecycle.EventAppender.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *schema.EditorEvent) error {
	if event.FlowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event flow id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction; a write forces the
	// lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM editor_events WHERE flow_id = ?`, event.FlowID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Seq = seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO editor_events (flow_id, seq, kind, node_id, edge_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.FlowID, seq, event.Kind, nullStr(event.NodeID), nullStr(event.EdgeID), nullRaw(event.Payload), event.Timestamp,
	); err != nil {
		return storeError("insert event", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// ListEvents returns events for a flow with seq > since, ordered by seq.
func (s *LibSQLStore) ListEvents(ctx context.Context, flowID string, since int64) ([]*schema.EditorEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT flow_id, seq, kind, node_id, edge_id, payload, created_at FROM editor_events
		 WHERE flow_id = ? AND seq > ? ORDER BY seq ASC`, flowID, since)
	if err != nil {
		return nil, storeError("list events", err)
	}
	defer rows.Close()

	var out []*schema.EditorEvent
	for rows.Next() {
		e := &schema.EditorEvent{}
		var nodeID, edgeID, payload sql.NullString
		if err := rows.Scan(&e.FlowID, &e.Seq, &e.Kind, &nodeID, &edgeID, &payload, &e.Timestamp); err != nil {
			return nil, storeError("scan event", err)
		}
		e.NodeID = nodeID.String
		e.EdgeID = edgeID.String
		e.Payload = rawOrNil(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEvents drops the event log of a flow and returns the number of rows removed.
func (s *LibSQLStore) DeleteEvents(ctx context.Context, flowID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM editor_events WHERE flow_id = ?`, flowID)
	if err != nil {
		return 0, storeError("delete events", err)
	}
	return res.RowsAffected()
}

// EventLog reads the editor event log of a store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide history queries.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// History summarises the event log of one flow.
type History struct {
	FlowID  string                `json:"flow_id"`
	Events  []*schema.EditorEvent `json:"events"`
	Kinds   map[string]int        `json:"kinds"`
	Nodes   []string              `json:"nodes"`
	Saves   int                   `json:"saves"`
	LastSeq int64                 `json:"last_seq"`
	// UnsavedEvents counts events after the last flow_saved.
	UnsavedEvents int `json:"unsaved_events"`
}

// Replay reads every event of a flow and summarises it. A gap in the
// sequence is reported as STORE_ERROR.
func (el *EventLog) Replay(ctx context.Context, flowID string) (*History, error) {
	events, err := el.store.ListEvents(ctx, flowID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	h := &History{FlowID: flowID, Events: events, Kinds: map[string]int{}, Nodes: []string{}}
	for i, e := range events {
		if expected := int64(i + 1); e.Seq != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in flow %s: expected %d, got %d", flowID, expected, e.Seq)
		}
		h.Kinds[e.Kind]++
		h.LastSeq = e.Seq
		if e.NodeID != "" && !slices.Contains(h.Nodes, e.NodeID) {
			h.Nodes = append(h.Nodes, e.NodeID)
		}
		if e.Kind == schema.EventFlowSaved {
			h.Saves++
			h.UnsavedEvents = 0
			continue
		}
		h.UnsavedEvents++
	}
	return h, nil
}
