package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowNode_WireFormat(t *testing.T) {
	minV := 2.0
	node := FlowNode{
		ID:           "n1",
		NodeNo:       "1",
		Name:         "Draft contract",
		ExecForm:     ExecFormDocReview,
		DurationMin:  &minV,
		DurationUnit: DurationUnitDay,
		RACI:         RACI{RACIResponsible: {"alice"}},
		Subtasks:     []string{"collect", "review"},
	}

	raw, err := json.Marshal(node)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, `{"R":["alice"]}`, wire["raci_json"])
	assert.Equal(t, `["collect","review"]`, wire["subtasks_json"])
	assert.Nil(t, wire["duration_max"])
	_, hasRACI := wire["RACI"]
	assert.False(t, hasRACI)
}

func TestFlowNode_DecodeDefaults(t *testing.T) {
	raw := `{"id":"n1","node_no":"1","name":"A","raci_json":"","subtasks_json":"[]","duration_unit":"DAY"}`

	var node FlowNode
	require.NoError(t, json.Unmarshal([]byte(raw), &node))
	assert.Equal(t, "n1", node.ID)
	assert.NotNil(t, node.RACI)
	assert.True(t, node.RACI.Empty())
	assert.Equal(t, []string{}, node.Subtasks)
	assert.Nil(t, node.DurationMin)
}

func TestFlowNode_DecodeIgnoresBadEmbeddedJSON(t *testing.T) {
	raw := `{"id":"n1","raci_json":"{not json","subtasks_json":"oops"}`

	var node FlowNode
	require.NoError(t, json.Unmarshal([]byte(raw), &node))
	assert.True(t, node.RACI.Empty())
	assert.Empty(t, node.Subtasks)
}

func TestFlowNode_DecodeDropsUnknownRACIKeys(t *testing.T) {
	raw := `{"id":"n1","raci_json":"{\"R\":[\"a\"],\"X\":[\"b\"]}"}`

	var node FlowNode
	require.NoError(t, json.Unmarshal([]byte(raw), &node))
	assert.Equal(t, RACI{RACIResponsible: {"a"}}, node.RACI)
}

func TestFlowNode_CloneIsDeep(t *testing.T) {
	v := 1.0
	node := FlowNode{DurationMax: &v, RACI: RACI{RACIInformed: {"x"}}, Subtasks: []string{"s"}}
	cp := node.Clone()

	*cp.DurationMax = 9
	cp.RACI[RACIInformed][0] = "y"
	cp.Subtasks[0] = "t"

	assert.Equal(t, 1.0, *node.DurationMax)
	assert.Equal(t, "x", node.RACI[RACIInformed][0])
	assert.Equal(t, "s", node.Subtasks[0])
}

func TestEnums(t *testing.T) {
	assert.True(t, FlowStatusInReview.Valid())
	assert.False(t, FlowStatus("ARCHIVED").Valid())
	assert.True(t, ExecFormEmailConfirm.Valid())
	assert.False(t, ExecForm("").Valid())
	assert.True(t, RACISupportive.Valid())
	assert.False(t, RACIKey("X").Valid())
	assert.InDelta(t, 7.0, DurationUnitWeek.Days(), 1e-9)
	assert.InDelta(t, 1.0/24, DurationUnitHour.Days(), 1e-9)
}

func TestFlowVersion_Snapshot(t *testing.T) {
	v := FlowVersion{ID: "v1", SnapshotJSON: `{"flow":{"id":"f1","status":"EFFECTIVE"},"nodes":[],"total_duration_min_days":1.5}`}
	detail, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "f1", detail.Flow.ID)
	assert.Equal(t, FlowStatusEffective, detail.Flow.Status)
	assert.InDelta(t, 1.5, detail.TotalDurationMinDays, 1e-9)

	_, err = FlowVersion{ID: "v2", SnapshotJSON: "nope"}.Snapshot()
	assert.True(t, IsCode(err, ErrCodeValidation))
}
