package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("edges[0].target", IssueDanglingEdge, "edge e1 points at missing node n9")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "edges[0].target", r.Errors[0].Path)
	assert.Equal(t, IssueDanglingEdge, r.Errors[0].Code)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	assert.True(t, r.HasCode(IssueDanglingEdge))
	assert.False(t, r.HasCode(IssueSelfLoop))
}

func TestValidationResult_WarningsStayValid(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("nodes[1]", IssueIsolatedNode, "node n2 has no edges")

	assert.True(t, r.Valid())
	assert.True(t, r.HasCode(IssueIsolatedNode))
	assert.Nil(t, r.ToError())
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("nodes[0].id", IssueDuplicateNode, "err1")
	r1.Merge(nil)

	r2 := &ValidationResult{}
	r2.AddError("edges[0]", IssueSelfLoop, "err2")
	r2.AddWarning("nodes[2]", IssueIsolatedNode, "warn")
	r1.Merge(r2)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 1)
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("nodes[0].id", IssueDuplicateNode, "duplicate node id n1")

	var fdErr *FlowdeskError
	require.ErrorAs(t, r.ToError(), &fdErr)
	assert.Equal(t, ErrCodeValidation, fdErr.Code)
	assert.Equal(t, "duplicate node id n1", fdErr.Message)

	r.AddError("edges[0]", IssueSelfLoop, "self loop")
	require.ErrorAs(t, r.ToError(), &fdErr)
	assert.Equal(t, "diagram has 2 problems", fdErr.Message)
	assert.Equal(t, 2, fdErr.Details["error_count"])
}
