package editor

import (
	"context"
	"fmt"

	"github.com/rendis/flowdesk/pkg/schema"
)

// Select marks a node as the panel's current node. An empty id clears the
// selection. Selection is allowed on read-only flows.
func (e *Editor) Select(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != "" && e.indexOf(id) < 0 && !e.diagram.HasNode(id) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id).WithNode(id)
	}
	if e.selected == id {
		return nil
	}
	e.selected = id
	e.emit(ctx, schema.EventNodeSelected, id, "", nil)
	return nil
}

// Selected returns the selected node id, or "".
func (e *Editor) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// SelectedIndex returns the position of the selected record in sort order,
// or -1 when nothing with a record is selected.
func (e *Editor) SelectedIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedIndexLocked()
}

func (e *Editor) selectedIndexLocked() int {
	if e.selected == "" {
		return -1
	}
	for i, n := range Ordered(e.nodes) {
		if n.ID == e.selected {
			return i
		}
	}
	return -1
}

// Prev selects the previous record in sort order. It reports false at the
// first record or when nothing is selected.
func (e *Editor) Prev(ctx context.Context) bool {
	return e.step(ctx, -1)
}

// Next selects the following record in sort order. It reports false at the
// last record or when nothing is selected.
func (e *Editor) Next(ctx context.Context) bool {
	return e.step(ctx, 1)
}

func (e *Editor) step(ctx context.Context, delta int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.selectedIndexLocked()
	if i < 0 {
		return false
	}
	ordered := Ordered(e.nodes)
	j := i + delta
	if j < 0 || j >= len(ordered) {
		return false
	}
	e.selected = ordered[j].ID
	e.emit(ctx, schema.EventNodeSelected, e.selected, "", nil)
	return true
}

// Progress renders the panel footer position as "i / total", or "" when
// nothing is selected.
func (e *Editor) Progress() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.selectedIndexLocked()
	if i < 0 {
		return ""
	}
	return fmt.Sprintf("%d / %d", i+1, len(e.nodes))
}

// Totals sums the duration bounds of every record, in days.
func (e *Editor) Totals() (minDays, maxDays float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Totals(e.nodes)
}

// Dirty reports whether the session has unsaved edits.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Saving reports whether a Save is in flight.
func (e *Editor) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}
