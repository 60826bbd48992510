package editor

import (
	"testing"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	d := diagram.Diagram{Nodes: []diagram.Node{
		{ID: "a", Label: "Existing"},
		{ID: "b", Label: "Review"},
		{ID: "c", Label: "Sign"},
	}}
	existing := []schema.FlowNode{{ID: "a", NodeNo: "1", Name: "Existing"}}

	out, added := Reconcile("f1", d, existing)
	require.Len(t, out, 3)
	require.Len(t, added, 2)

	b := out[1]
	assert.Equal(t, "b", b.ID)
	assert.Equal(t, "f1", b.FlowID)
	assert.Equal(t, "2", b.NodeNo)
	assert.Equal(t, "Review", b.Name)
	assert.Equal(t, 1, b.SortOrder)
	assert.Equal(t, schema.DurationUnitDay, b.DurationUnit)
	assert.Nil(t, b.DurationMin)
	assert.True(t, b.RACI.Empty())
	assert.Empty(t, b.Subtasks)
	assert.Equal(t, "3", out[2].NodeNo)
	assert.Equal(t, 2, out[2].SortOrder)

	again, none := Reconcile("f1", d, out)
	assert.Nil(t, none)
	assert.Equal(t, out, again)
}

func TestReconcile_DuplicateDiagramIDsAddOnce(t *testing.T) {
	d := diagram.Diagram{Nodes: []diagram.Node{{ID: "a"}, {ID: "a"}}}
	out, _ := Reconcile("f1", d, nil)
	assert.Len(t, out, 1)
}

func TestSyncLabel(t *testing.T) {
	d := pair()

	same, changed := SyncLabel(d, "a", "")
	assert.False(t, changed)
	assert.Equal(t, "A", same.Nodes[0].Label)

	_, changed = SyncLabel(d, "missing", "X")
	assert.False(t, changed)

	out, changed := SyncLabel(d, "a", "Start")
	assert.True(t, changed)
	assert.Equal(t, "Start", out.Nodes[0].Label)
	assert.Equal(t, "A", d.Nodes[0].Label)
}

func TestRemoveNode(t *testing.T) {
	d := pair()
	d.Edges = []diagram.Edge{{ID: "e1", Source: "a", Target: "b"}}
	records := []schema.FlowNode{{ID: "a"}, {ID: "b"}}

	outD, outR := RemoveNode(d, records, "a")
	assert.Empty(t, outD.Edges)
	assert.Equal(t, []string{"b"}, outD.NodeIDs())
	require.Len(t, outR, 1)
	assert.Equal(t, "b", outR[0].ID)
	assert.Len(t, records, 2)
}

func TestOrdered(t *testing.T) {
	records := []schema.FlowNode{
		{ID: "x", NodeNo: "10", SortOrder: 1},
		{ID: "y", NodeNo: "9", SortOrder: 1},
		{ID: "z", NodeNo: "1", SortOrder: 0},
	}
	out := Ordered(records)
	ids := []string{out[0].ID, out[1].ID, out[2].ID}
	assert.Equal(t, []string{"z", "y", "x"}, ids)
	assert.Equal(t, "x", records[0].ID)
}

func TestTotals(t *testing.T) {
	ninety, six := 90.0, 6.0
	records := []schema.FlowNode{
		{DurationMin: &ninety, DurationUnit: schema.DurationUnitMinute},
		{DurationMax: &six, DurationUnit: schema.DurationUnitHour},
	}
	minDays, maxDays := Totals(records)
	assert.InDelta(t, 90.0/1440, minDays, 1e-9)
	assert.InDelta(t, 0.25, maxDays, 1e-9)
}
