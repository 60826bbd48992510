package schema

import "fmt"

// Issue codes emitted by diagram and readiness validation.
const (
	IssueSchema          = "SCHEMA"
	IssueDuplicateNode   = "DUPLICATE_NODE_ID"
	IssueDuplicateEdge   = "DUPLICATE_EDGE_ID"
	IssueDanglingEdge    = "DANGLING_EDGE"
	IssueSelfLoop        = "SELF_LOOP"
	IssueParallelEdge    = "DUPLICATE_CONNECTION"
	IssueMissingRecord   = "MISSING_NODE_RECORD"
	IssueMissingName     = "MISSING_NODE_NAME"
	IssueMissingExecForm = "MISSING_EXEC_FORM"
	IssueIsolatedNode    = "ISOLATED_NODE"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult aggregates all issues found in a diagram or flow.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors. Warnings never block a save.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// HasCode reports whether any error or warning carries the given code.
func (r *ValidationResult) HasCode(code string) bool {
	for _, issue := range r.Errors {
		if issue.Code == code {
			return true
		}
	}
	for _, issue := range r.Warnings {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// ToError converts the result to a VALIDATION_ERROR, or nil when valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("diagram has %d problems", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
